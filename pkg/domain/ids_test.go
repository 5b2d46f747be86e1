package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "homechef/pkg/domain-errors"
)

// TestParseID_Invariants validates that ids are non-empty, bounded, and never
// contain characters that would change the shape of a store path.
func TestParseID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("   ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects path separators", func(t *testing.T) {
		_, err := ParseItemID("a/../b")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects dot segments", func(t *testing.T) {
		_, err := ParseOrderID("..")
		require.Error(t, err)
	})

	t.Run("rejects overlong ids", func(t *testing.T) {
		_, err := ParseUserID(strings.Repeat("x", maxIDLength+1))
		require.Error(t, err)
	})

	t.Run("accepts and trims identity provider uids", func(t *testing.T) {
		id, err := ParseUserID("  kX9fQ2uid-01  ")
		require.NoError(t, err)
		assert.Equal(t, UserID("kX9fQ2uid-01"), id)
		assert.False(t, id.IsNil())
	})
}

func TestParseMoney(t *testing.T) {
	t.Run("parses decimal strings exactly", func(t *testing.T) {
		m, err := ParseMoney("10.10")
		require.NoError(t, err)
		assert.Equal(t, "30.3", LineTotal(m, 3).String())
	})

	t.Run("rejects negative prices", func(t *testing.T) {
		_, err := ParseMoney("-1")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseMoney("ten")
		require.Error(t, err)
	})
}
