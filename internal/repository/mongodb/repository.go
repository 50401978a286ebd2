package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/feria/internal/domain/models"
	"github.com/mamadbah2/feria/internal/repository"
)

const (
	settingsCollection = "settings"
	salesCollection    = "activeSales"
	historyCollection  = "feriaHistory"
	activeFeriaID      = "activeFeria"
	markerField        = "activating_from"
)

// MongoDBRepository implements repository.Store on MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger

	indexMu      sync.Mutex
	indexesReady bool
}

var _ repository.Store = (*MongoDBRepository)(nil)

// NewMongoDBRepository builds the client without requiring the server to be
// reachable. When the startup ping fails, index creation is deferred to the
// first successful Ping so a terminal can boot offline.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	r := &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
	}

	if err := r.Ping(ctx); err != nil {
		logger.Warn("mongodb unreachable at startup, indexes deferred", zap.Error(err))
	}

	return r, nil
}

func (r *MongoDBRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(salesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "idempotency_key", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$type": "string"}}),
	})
	if err != nil {
		return fmt.Errorf("failed to create sales idempotency index: %w", err)
	}

	_, err = r.db.Collection(historyCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "config.name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create history name index: %w", err)
	}

	return nil
}

// Ping checks the store is reachable. The first successful ping also
// creates the indexes; an index failure is logged and retried on the next
// ping without reporting the store as unreachable.
func (r *MongoDBRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, nil); err != nil {
		return err
	}

	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	if r.indexesReady {
		return nil
	}
	if err := r.ensureIndexes(ctx); err != nil {
		r.logger.Error("index creation failed", zap.Error(err))
		return nil
	}
	r.indexesReady = true
	return nil
}

// IndexesReady reports whether the indexes have been created.
func (r *MongoDBRepository) IndexesReady() bool {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	return r.indexesReady
}

// ActiveFeria reads the active slot.
func (r *MongoDBRepository) ActiveFeria(ctx context.Context) (*models.FeriaConfig, error) {
	var doc settingsDocument
	err := r.db.Collection(settingsCollection).FindOne(ctx, bson.M{"_id": activeFeriaID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read active feria: %w", err)
	}
	if doc.Name == "" {
		return nil, nil
	}
	cfg := fromConfigDocument(doc.configDocument)
	return &cfg, nil
}

// SaveActiveFeria sets the fair fields on the settings document, leaving any
// other top-level settings untouched.
func (r *MongoDBRepository) SaveActiveFeria(ctx context.Context, cfg models.FeriaConfig) error {
	doc := toConfigDocument(cfg)
	set := bson.M{
		"name":               doc.Name,
		"price_per_pinta":    doc.PricePerPinta,
		"price_per_litro":    doc.PricePerLitro,
		"initial_stock":      doc.InitialStock,
		"waste_per_pinta_ml": doc.WastePerPintaMl,
	}
	update := bson.M{"$set": set}
	unset := bson.M{}
	if doc.DateStart.IsZero() {
		unset["date_start"] = ""
	} else {
		set["date_start"] = doc.DateStart
	}
	if doc.DateEnd.IsZero() {
		unset["date_end"] = ""
	} else {
		set["date_end"] = doc.DateEnd
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	_, err := r.db.Collection(settingsCollection).UpdateOne(ctx, bson.M{"_id": activeFeriaID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save active feria: %w", err)
	}
	return nil
}

// ClearActiveFeria unsets the fair fields and the activation marker of the
// settings document.
func (r *MongoDBRepository) ClearActiveFeria(ctx context.Context) error {
	unset := bson.M{markerField: ""}
	for _, field := range configFields {
		unset[field] = ""
	}
	_, err := r.db.Collection(settingsCollection).UpdateOne(ctx, bson.M{"_id": activeFeriaID}, bson.M{"$unset": unset})
	if err != nil {
		return fmt.Errorf("failed to clear active feria: %w", err)
	}
	return nil
}

// ActivationMarker reads the id of the history record being activated.
func (r *MongoDBRepository) ActivationMarker(ctx context.Context) (string, error) {
	var doc struct {
		Marker string `bson:"activating_from"`
	}
	err := r.db.Collection(settingsCollection).FindOne(ctx, bson.M{"_id": activeFeriaID},
		options.FindOne().SetProjection(bson.M{markerField: 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read activation marker: %w", err)
	}
	return doc.Marker, nil
}

// SetActivationMarker stores or, for "", removes the activation marker.
func (r *MongoDBRepository) SetActivationMarker(ctx context.Context, historyID string) error {
	update := bson.M{"$set": bson.M{markerField: historyID}}
	if historyID == "" {
		update = bson.M{"$unset": bson.M{markerField: ""}}
	}
	_, err := r.db.Collection(settingsCollection).UpdateOne(ctx, bson.M{"_id": activeFeriaID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save activation marker: %w", err)
	}
	return nil
}

// ListActiveSales returns the live sale stream ordered by timestamp.
func (r *MongoDBRepository) ListActiveSales(ctx context.Context) ([]models.Sale, error) {
	cursor, err := r.db.Collection(salesCollection).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list active sales: %w", err)
	}
	defer cursor.Close(ctx)

	var sales []models.Sale
	for cursor.Next(ctx) {
		var doc liveSaleDocument
		if err := cursor.Decode(&doc); err != nil {
			r.logger.Warn("skip undecodable sale document", zap.Error(err))
			continue
		}
		sales = append(sales, fromLiveSaleDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active sales: %w", err)
	}
	return sales, nil
}

// InsertSale writes one sale, skipping it when its idempotency key is already
// present.
func (r *MongoDBRepository) InsertSale(ctx context.Context, sale models.Sale) (string, error) {
	coll := r.db.Collection(salesCollection)
	doc := toLiveSaleDocument(sale)

	if doc.IdempotencyKey == "" {
		res, err := coll.InsertOne(ctx, doc)
		if err != nil {
			return "", fmt.Errorf("failed to insert sale: %w", err)
		}
		return objectIDHex(res.InsertedID), nil
	}

	filter := bson.M{"idempotency_key": doc.IdempotencyKey}
	res, err := coll.UpdateOne(ctx, filter, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("failed to upsert sale: %w", err)
	}
	if res.UpsertedID != nil {
		return objectIDHex(res.UpsertedID), nil
	}

	var existing struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	err = coll.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&existing)
	if err != nil {
		return "", fmt.Errorf("failed to resolve existing sale: %w", err)
	}
	r.logger.Debug("sale already stored", zap.String("idempotency_key", doc.IdempotencyKey))
	return existing.ID.Hex(), nil
}

// InsertSales writes one batch with the same semantics as InsertSale.
func (r *MongoDBRepository) InsertSales(ctx context.Context, sales []models.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	if len(sales) > repository.MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds limit %d", len(sales), repository.MaxBatchSize)
	}

	writes := make([]mongo.WriteModel, 0, len(sales))
	for _, sale := range sales {
		doc := toLiveSaleDocument(sale)
		if doc.IdempotencyKey == "" {
			writes = append(writes, mongo.NewInsertOneModel().SetDocument(doc))
			continue
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"idempotency_key": doc.IdempotencyKey}).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true))
	}

	if _, err := r.db.Collection(salesCollection).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to insert sales batch: %w", err)
	}
	return nil
}

// DeleteSales removes one batch of sales by id.
func (r *MongoDBRepository) DeleteSales(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) > repository.MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds limit %d", len(ids), repository.MaxBatchSize)
	}

	keys := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			keys = append(keys, oid)
			continue
		}
		keys = append(keys, id)
	}

	if _, err := r.db.Collection(salesCollection).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}}); err != nil {
		return fmt.Errorf("failed to delete sales batch: %w", err)
	}
	return nil
}

// FindHistoryByName returns nil when no record carries the name.
func (r *MongoDBRepository) FindHistoryByName(ctx context.Context, name string) (*models.HistoricalFeria, error) {
	record, err := r.findHistory(ctx, bson.M{"config.name": name})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return record, err
}

// GetHistory returns repository.ErrNotFound for unknown ids.
func (r *MongoDBRepository) GetHistory(ctx context.Context, id string) (*models.HistoricalFeria, error) {
	return r.findHistory(ctx, bson.M{"_id": id})
}

func (r *MongoDBRepository) findHistory(ctx context.Context, filter bson.M) (*models.HistoricalFeria, error) {
	var doc historyDocument
	err := r.db.Collection(historyCollection).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feria history: %w", err)
	}
	record := fromHistoryDocument(doc)
	return &record, nil
}

// SaveHistory replaces the record with the same id, creating it if needed.
func (r *MongoDBRepository) SaveHistory(ctx context.Context, record models.HistoricalFeria) error {
	if record.ID == "" {
		return errors.New("history record requires an id")
	}
	doc := toHistoryDocument(record)
	_, err := r.db.Collection(historyCollection).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save feria history: %w", err)
	}
	return nil
}

// DeleteHistory removes a record permanently.
func (r *MongoDBRepository) DeleteHistory(ctx context.Context, id string) error {
	res, err := r.db.Collection(historyCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete feria history: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListHistory returns all records, newest first.
func (r *MongoDBRepository) ListHistory(ctx context.Context) ([]models.HistoricalFeria, error) {
	cursor, err := r.db.Collection(historyCollection).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "archived_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list feria history: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []historyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode feria history: %w", err)
	}

	records := make([]models.HistoricalFeria, len(docs))
	for i, doc := range docs {
		records[i] = fromHistoryDocument(doc)
	}
	return records, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func objectIDHex(id interface{}) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(id)
}
