// Package mongomirror archives synced market data to MongoDB when a URI is
// configured. The mirror is strictly best-effort: every failure is logged
// and swallowed so archival can never break a sync run.
package mongomirror

import (
	"context"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ashare_backend/models"
)

// Collection names
const (
	stockListCollection  = "stock_list"
	quotesCollection     = "quote_snapshots"
	syncRunsCollection   = "sync_runs"
)

const opTimeout = 30 * time.Second

// Mirror writes archival copies of synced data to MongoDB
type Mirror struct {
	mu        sync.RWMutex
	client    *mongo.Client
	database  *mongo.Database
	connected bool
}

// stockListDoc is the single-document stock list archive
type stockListDoc struct {
	ID        string                  `bson:"_id"`
	UpdatedAt time.Time               `bson:"updated_at"`
	Count     int                     `bson:"count"`
	Stocks    []models.StockListEntry `bson:"stocks"`
}

// quoteSnapshotDoc records one market-wide quote snapshot
type quoteSnapshotDoc struct {
	TakenAt time.Time                `bson:"taken_at"`
	Count   int                      `bson:"count"`
	Quotes  map[string]*models.Quote `bson:"quotes"`
}

// NewMirror connects to MongoDB. An empty uri returns a disabled mirror
// (nil) without error; a set but unreachable uri returns the error.
func NewMirror(uri, database string) (*Mirror, error) {
	if uri == "" {
		log.Println("MONGODB_URI not set, Mongo mirror disabled")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	m := &Mirror{
		client:    client,
		database:  client.Database(database),
		connected: true,
	}
	m.createIndexes()
	log.Println("Mongo mirror connected")
	return m, nil
}

func (m *Mirror) createIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	m.database.Collection(quotesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "taken_at", Value: -1}},
	})
	m.database.Collection(syncRunsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "start_time", Value: -1}},
	})
}

// Connected reports whether the mirror has a live connection
func (m *Mirror) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Close disconnects from MongoDB
func (m *Mirror) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.client.Disconnect(ctx)
	m.connected = false
}

// MirrorStockList replaces the archived stock list document
func (m *Mirror) MirrorStockList(entries []models.StockListEntry) {
	if !m.Connected() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	doc := stockListDoc{
		ID:        "stock_list",
		UpdatedAt: time.Now(),
		Count:     len(entries),
		Stocks:    entries,
	}
	_, err := m.database.Collection(stockListCollection).
		ReplaceOne(ctx, bson.M{"_id": "stock_list"}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		log.Printf("Mongo mirror: stock list write failed: %v", err)
		return
	}
	log.Printf("Mongo mirror: archived %d stocks", len(entries))
}

// MirrorQuotes appends one market-wide quote snapshot
func (m *Mirror) MirrorQuotes(quotes map[string]*models.Quote) {
	if !m.Connected() || len(quotes) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	doc := quoteSnapshotDoc{
		TakenAt: time.Now(),
		Count:   len(quotes),
		Quotes:  quotes,
	}
	if _, err := m.database.Collection(quotesCollection).InsertOne(ctx, doc); err != nil {
		log.Printf("Mongo mirror: quote snapshot write failed: %v", err)
		return
	}
	log.Printf("Mongo mirror: archived snapshot of %d quotes", len(quotes))
}

// MirrorSyncResult appends one sync run record
func (m *Mirror) MirrorSyncResult(result *models.SyncResult) {
	if !m.Connected() || result == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := m.database.Collection(syncRunsCollection).InsertOne(ctx, result); err != nil {
		log.Printf("Mongo mirror: sync run write failed: %v", err)
	}
}

// RecentSyncRuns returns the latest sync run records, newest first
func (m *Mirror) RecentSyncRuns(limit int) ([]models.SyncResult, error) {
	if !m.Connected() {
		return nil, nil
	}
	if limit < 1 {
		limit = 20
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	cursor, err := m.database.Collection(syncRunsCollection).
		Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "start_time", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var runs []models.SyncResult
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}
