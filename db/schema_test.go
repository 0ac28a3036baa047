package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testOpts() SchemaOptions {
	return SchemaOptions{
		AdminUsername: "superadmin",
		AdminEmail:    "admin@example.com",
		AdminPassword: "Admin_2025!",
	}
}

func newSchemaBackend(t *testing.T) Backend {
	t.Helper()
	return NewSQLite(filepath.Join(t.TempDir(), "test.db"))
}

func countRows(t *testing.T, b Backend, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, b.WithConn(func(q Queryer) error {
		return q.QueryRow(query, args...).Scan(&n)
	}))
	return n
}

func TestEnsureSchemaCreatesTables(t *testing.T) {
	b := newSchemaBackend(t)
	require.NoError(t, EnsureSchema(b, testOpts()))

	err := b.WithConn(func(q Queryer) error {
		for _, table := range []string{"users", "questions", "carts", "cart_items", "question_usage_history"} {
			var n int
			if err := q.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
				return err
			}
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	b := newSchemaBackend(t)
	require.NoError(t, EnsureSchema(b, testOpts()))
	require.NoError(t, EnsureSchema(b, testOpts()))
	require.NoError(t, EnsureSchema(b, testOpts()))

	assert.Equal(t, 1, countRows(t, b, "SELECT COUNT(*) FROM users WHERE role = 'admin'"))
}

func TestEnsureSchemaSeedsAdmin(t *testing.T) {
	b := newSchemaBackend(t)
	require.NoError(t, EnsureSchema(b, testOpts()))

	var username, email, hash string
	var active bool
	require.NoError(t, b.WithConn(func(q Queryer) error {
		return q.QueryRow(
			"SELECT username, email, password_hash, is_active FROM users WHERE role = 'admin'",
		).Scan(&username, &email, &hash, &active)
	}))
	assert.Equal(t, "superadmin", username)
	assert.Equal(t, "admin@example.com", email)
	assert.True(t, active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("Admin_2025!")))
}

func TestEnsureSchemaKeepsExistingAdminPassword(t *testing.T) {
	b := newSchemaBackend(t)
	require.NoError(t, EnsureSchema(b, testOpts()))

	var before string
	require.NoError(t, b.WithConn(func(q Queryer) error {
		return q.QueryRow("SELECT password_hash FROM users WHERE role = 'admin'").Scan(&before)
	}))

	opts := testOpts()
	opts.AdminPassword = "SomethingElse_99"
	require.NoError(t, EnsureSchema(b, opts))

	var after string
	require.NoError(t, b.WithConn(func(q Queryer) error {
		return q.QueryRow("SELECT password_hash FROM users WHERE role = 'admin'").Scan(&after)
	}))
	assert.Equal(t, before, after)
}

func TestEnsureSchemaSeedsSampleQuestionsOnce(t *testing.T) {
	b := newSchemaBackend(t)
	opts := testOpts()
	opts.SeedSampleData = true

	require.NoError(t, EnsureSchema(b, opts))
	first := countRows(t, b, "SELECT COUNT(*) FROM questions")
	assert.Equal(t, 3, first)

	require.NoError(t, EnsureSchema(b, opts))
	assert.Equal(t, first, countRows(t, b, "SELECT COUNT(*) FROM questions"))
}

func TestEnsureSchemaForceRecreateDropsCartData(t *testing.T) {
	b := newSchemaBackend(t)
	opts := testOpts()
	opts.SeedSampleData = true
	require.NoError(t, EnsureSchema(b, opts))

	require.NoError(t, b.WithConn(func(q Queryer) error {
		if _, err := q.Exec("INSERT INTO carts (test_id, user_id, metadata) VALUES (?, ?, ?)", "test_1", 1, "{}"); err != nil {
			return err
		}
		_, err := q.Exec("INSERT INTO cart_items (cart_id, question_id) VALUES (?, ?)", 1, 1)
		return err
	}))
	require.Equal(t, 1, countRows(t, b, "SELECT COUNT(*) FROM carts"))

	opts.ForceRecreateCartTables = true
	require.NoError(t, EnsureSchema(b, opts))

	assert.Equal(t, 0, countRows(t, b, "SELECT COUNT(*) FROM carts"))
	assert.Equal(t, 0, countRows(t, b, "SELECT COUNT(*) FROM cart_items"))
	// Everything else survives.
	assert.Equal(t, 3, countRows(t, b, "SELECT COUNT(*) FROM questions"))
	assert.Equal(t, 1, countRows(t, b, "SELECT COUNT(*) FROM users"))
}
