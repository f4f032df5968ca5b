package dbclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"sheetsync/internal/domain"
	"sheetsync/internal/etl"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ── MongoDB store ──────────────────────────────────────────
// One collection per table. The primary key is stored as _id and the
// ordered column list lives in a metadata collection, since documents
// have no schema to describe.

// metaCollection holds one document per synced table.
const metaCollection = "sheetsync_columns"

type tableMeta struct {
	Table      string   `bson:"_id"`
	PrimaryKey string   `bson:"primary_key"`
	Columns    []string `bson:"columns"`
}

type mongoStore struct {
	client *mongo.Client
	dbName string
	// txMode is the "transactions" option: "true", "false", or empty to
	// decide from the server topology at Ping.
	txMode string
	// useTx is false for standalone servers, which reject transactions.
	useTx atomic.Bool
}

// buildMongoURI turns a DatabaseConnection into a connection string. A
// host that already is a mongodb:// or mongodb+srv:// URI is used as is,
// with <password> placeholders filled in.
func buildMongoURI(conn *domain.DatabaseConnection, password string) string {
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri := conn.Host
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", url.QueryEscape(password))
			uri = strings.ReplaceAll(uri, "<db_password>", url.QueryEscape(password))
		}
		return uri
	}

	port := conn.Port
	if port == 0 {
		port = 27017
	}
	u := url.URL{Scheme: "mongodb", Host: fmt.Sprintf("%s:%d", conn.Host, port), Path: "/"}
	if conn.Username != "" {
		u.User = url.UserPassword(conn.Username, password)
	}
	params := url.Values{}
	keys := make([]string, 0, len(conn.Options))
	for k := range conn.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "transactions" {
			continue
		}
		params.Set(k, conn.Options[k])
	}
	u.RawQuery = params.Encode()
	return u.String()
}

func newMongoStore(conn *domain.DatabaseConnection, password string) (*mongoStore, error) {
	dbName := conn.Database
	if dbName == "" {
		dbName = "sheetsync"
	}
	client, err := mongo.Connect(options.Client().ApplyURI(buildMongoURI(conn, password)))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	m := &mongoStore{
		client: client,
		dbName: dbName,
		txMode: conn.Options["transactions"],
	}
	m.useTx.Store(m.txMode != "false")
	return m, nil
}

func (m *mongoStore) Driver() string { return "mongodb" }

func (m *mongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.client.Ping(ctx, nil); err != nil {
		return err
	}
	if m.txMode == "" {
		var hello bson.M
		if err := m.db().RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
			return fmt.Errorf("hello: %w", err)
		}
		m.useTx.Store(supportsTransactions(hello))
	}
	return nil
}

// supportsTransactions reads a hello reply: replica set members and
// mongos routers run transactions, standalone servers do not.
func supportsTransactions(hello bson.M) bool {
	if name, ok := hello["setName"].(string); ok && name != "" {
		return true
	}
	return hello["msg"] == "isdbgrid"
}

// TransactionalDDL is false: metadata changes are committed ahead of the
// row writes and are idempotent.
func (m *mongoStore) TransactionalDDL() bool { return false }

func (m *mongoStore) db() *mongo.Database { return m.client.Database(m.dbName) }

func (m *mongoStore) meta(ctx context.Context, table string) (*tableMeta, error) {
	var tm tableMeta
	err := m.db().Collection(metaCollection).FindOne(ctx, bson.M{"_id": table}).Decode(&tm)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

func (m *mongoStore) Describe(ctx context.Context, table string) (*etl.TableInfo, error) {
	tm, err := m.meta(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if tm == nil {
		return &etl.TableInfo{}, nil
	}
	return &etl.TableInfo{Exists: true, Columns: etl.TextColumns(tm.Columns...)}, nil
}

func (m *mongoStore) ReadRows(ctx context.Context, table string, columns etl.ColumnList) ([][]any, error) {
	tm, err := m.meta(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if tm == nil {
		return nil, nil
	}

	cursor, err := m.db().Collection(table).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := make([][]any, 0, len(docs))
	for _, doc := range docs {
		row := make([]any, len(columns))
		for i, c := range columns {
			field := c.Name
			if strings.EqualFold(field, tm.PrimaryKey) {
				field = "_id"
			}
			row[i] = mongoValue(doc[field])
		}
		out = append(out, row)
	}
	return out, nil
}

// mongoValue maps BSON scalars onto cell values.
func mongoValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time().UTC().Format(etl.TimestampLayout)
	case int32:
		return int64(val)
	default:
		return val
	}
}

func (m *mongoStore) Begin(ctx context.Context) (etl.Tx, error) {
	tx := &mongoTx{store: m, ctx: ctx}
	if !m.useTx.Load() {
		return tx, nil
	}
	sess, err := m.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("start transaction: %w", err)
	}
	tx.sess = sess
	return tx, nil
}

func (m *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// ── Transaction ────────────────────────────────────────────

type mongoTx struct {
	store *mongoStore
	ctx   context.Context
	sess  *mongo.Session // nil when transactions are disabled
	done  bool
}

// opCtx binds ctx to the transaction's session.
func (t *mongoTx) opCtx(ctx context.Context) context.Context {
	if t.sess == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, t.sess)
}

func (t *mongoTx) CreateTable(ctx context.Context, table string, columns etl.ColumnList, primaryKey string) error {
	_, err := t.store.db().Collection(metaCollection).UpdateOne(t.opCtx(ctx),
		bson.M{"_id": table},
		bson.M{
			"$setOnInsert": bson.M{"primary_key": primaryKey},
			"$addToSet":    bson.M{"columns": bson.M{"$each": columns.Names()}},
		},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (t *mongoTx) AddColumn(ctx context.Context, table string, column etl.Column) error {
	_, err := t.store.db().Collection(metaCollection).UpdateOne(t.opCtx(ctx),
		bson.M{"_id": table},
		bson.M{"$addToSet": bson.M{"columns": column.Name}},
	)
	return err
}

// document builds a BSON document, storing the primary key as _id.
func document(primaryKey string, columns []string, row []any) bson.D {
	doc := make(bson.D, 0, len(columns))
	for i, c := range columns {
		if strings.EqualFold(c, primaryKey) {
			doc = append(doc, bson.E{Key: "_id", Value: row[i]})
			continue
		}
		doc = append(doc, bson.E{Key: c, Value: row[i]})
	}
	return doc
}

func (t *mongoTx) primaryKey(ctx context.Context, table string) (string, error) {
	tm, err := t.store.meta(t.opCtx(ctx), table)
	if err != nil {
		return "", err
	}
	if tm == nil {
		return "", fmt.Errorf("collection %q has no metadata", table)
	}
	return tm.PrimaryKey, nil
}

func (t *mongoTx) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	pk, err := t.primaryKey(ctx, table)
	if err != nil {
		return err
	}
	docs := make([]any, len(rows))
	for i, row := range rows {
		docs[i] = document(pk, columns, row)
	}
	_, err = t.store.db().Collection(table).InsertMany(t.opCtx(ctx), docs)
	return err
}

func (t *mongoTx) UpdateRow(ctx context.Context, table, primaryKey, key string, columns []string, values []any) (bool, error) {
	set := make(bson.D, len(columns))
	for i, c := range columns {
		set[i] = bson.E{Key: c, Value: values[i]}
	}
	res, err := t.store.db().Collection(table).UpdateOne(t.opCtx(ctx), bson.M{"_id": key}, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (t *mongoTx) UpsertRows(ctx context.Context, table, primaryKey string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(rows))
	for _, row := range rows {
		doc := document(primaryKey, columns, row)
		var id any
		set := make(bson.D, 0, len(doc))
		for _, e := range doc {
			if e.Key == "_id" {
				id = e.Value
				continue
			}
			set = append(set, e)
		}
		update := bson.M{"$setOnInsert": bson.M{"_id": id}}
		if len(set) > 0 {
			update = bson.M{"$set": set}
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(update).
			SetUpsert(true))
	}
	_, err := t.store.db().Collection(table).BulkWrite(t.opCtx(ctx), models)
	return err
}

func (t *mongoTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.sess == nil {
		return nil
	}
	defer t.sess.EndSession(t.ctx)
	return t.sess.CommitTransaction(t.ctx)
}

func (t *mongoTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.sess == nil {
		return nil
	}
	defer t.sess.EndSession(t.ctx)
	return t.sess.AbortTransaction(t.ctx)
}
