package dbclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"sheetsync/internal/domain"
)

func TestSupportsTransactions(t *testing.T) {
	tests := []struct {
		name  string
		hello bson.M
		want  bool
	}{
		{"standalone", bson.M{"isWritablePrimary": true, "maxWireVersion": int32(21)}, false},
		{"replica set", bson.M{"isWritablePrimary": true, "setName": "rs0"}, true},
		{"mongos", bson.M{"isWritablePrimary": true, "msg": "isdbgrid"}, true},
		{"empty set name", bson.M{"setName": ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, supportsTransactions(tt.hello))
		})
	}
}

func TestNewMongoStore_TransactionsOption(t *testing.T) {
	for opt, want := range map[string]bool{"": true, "true": true, "false": false} {
		conn := &domain.DatabaseConnection{
			Driver:  domain.DatabaseDriverMongoDB,
			Host:    "localhost",
			Options: map[string]string{"transactions": opt},
		}
		m, err := newMongoStore(conn, "")
		require.NoError(t, err)
		assert.Equal(t, opt, m.txMode)
		assert.Equal(t, want, m.useTx.Load(), "transactions=%q", opt)
		m.Close()
	}
}
