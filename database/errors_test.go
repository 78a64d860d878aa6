package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"vuoksi-trader/apperrors"
)

func TestWrapDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.Kind
	}{
		{"not found", fmt.Errorf("first: %w", gorm.ErrRecordNotFound), apperrors.KindNotFound},
		{"pq unique violation", &pq.Error{Code: "23505", Message: "duplicate"}, apperrors.KindConflict},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, apperrors.KindConflict},
		{"other", errors.New("connection reset by peer"), apperrors.KindUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapDBError("op", tt.err)
			assert.Equal(t, tt.want, apperrors.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.NoError(t, WrapDBError("op", nil))
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "vuoksi"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=vuoksi sslmode=disable", cfg.DSN())
}
