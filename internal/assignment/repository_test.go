package assignment

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	_ "github.com/sproutly/sproutly/testing"
)

func TestDuplicateKey(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505"}
	assert.True(t, duplicateKey(dup))
	assert.True(t, duplicateKey(fmt.Errorf("insert row: %w", dup)))

	assert.False(t, duplicateKey(&pgconn.PgError{Code: "23503"}))
	assert.False(t, duplicateKey(fmt.Errorf("connection refused")))
	assert.False(t, duplicateKey(nil))
}
