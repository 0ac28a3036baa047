package db

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// SchemaOptions controls the bootstrap run.
type SchemaOptions struct {
	AdminUsername string
	AdminEmail    string
	AdminPassword string

	// ForceRecreateCartTables drops and recreates carts/cart_items. Migration
	// escape hatch only; normal startup never touches existing data.
	ForceRecreateCartTables bool

	SeedSampleData bool
}

func ddlStrings(kind Kind) []string {
	serial := "SERIAL PRIMARY KEY"
	metadata := "JSONB NOT NULL DEFAULT '{}'::jsonb"
	if kind == KindSQLite {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
		metadata = "TEXT NOT NULL DEFAULT '{}'"
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
    id %s,
    username VARCHAR(128) NOT NULL,
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    role VARCHAR(20) NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS questions (
    id %s,
    text TEXT NOT NULL UNIQUE,
    answer TEXT NOT NULL,
    explanation TEXT,
    subject VARCHAR(255) NOT NULL,
    module VARCHAR(255),
    topic VARCHAR(255) NOT NULL,
    sub_topic VARCHAR(255),
    difficulty VARCHAR(20) NOT NULL CHECK (difficulty IN ('Easy', 'Medium', 'Hard')),
    question_type VARCHAR(20) NOT NULL CHECK (question_type IN ('Objective', 'Subjective')),
    nature_of_question VARCHAR(255),
    tags TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS carts (
    id %s,
    test_id TEXT NOT NULL,
    user_id INTEGER NOT NULL,
    metadata %s,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (test_id, user_id),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
)`, serial, metadata),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cart_items (
    id %s,
    cart_id INTEGER NOT NULL,
    question_id INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (cart_id, question_id),
    FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE,
    FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS question_usage_history (
    id %s,
    question_id INTEGER NOT NULL,
    batch VARCHAR(255) NOT NULL,
    test_name VARCHAR(255),
    test_id TEXT,
    used_date TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
)`, serial),
	}
}

func indexStrings() []string {
	return []string{
		"CREATE INDEX IF NOT EXISTS idx_questions_subject ON questions(subject)",
		"CREATE INDEX IF NOT EXISTS idx_questions_module ON questions(module)",
		"CREATE INDEX IF NOT EXISTS idx_questions_topic ON questions(topic)",
		"CREATE INDEX IF NOT EXISTS idx_questions_difficulty ON questions(difficulty)",
		"CREATE INDEX IF NOT EXISTS idx_questions_question_type ON questions(question_type)",
		"CREATE INDEX IF NOT EXISTS idx_carts_user_id ON carts(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_carts_test_id ON carts(test_id)",
		"CREATE INDEX IF NOT EXISTS idx_cart_items_cart_id ON cart_items(cart_id)",
		"CREATE INDEX IF NOT EXISTS idx_cart_items_question_id ON cart_items(question_id)",
		"CREATE INDEX IF NOT EXISTS idx_usage_history_batch ON question_usage_history(batch)",
	}
}

// EnsureSchema creates the tables, constraints and indexes if absent and
// seeds the admin account. Idempotent and safe to call on every start.
func EnsureSchema(b Backend, opts SchemaOptions) error {
	return b.WithConn(func(q Queryer) error {
		if opts.ForceRecreateCartTables {
			log.Warn().Msg("force-recreating cart tables, all carts will be lost")
			for _, stmt := range []string{
				"DROP TABLE IF EXISTS cart_items",
				"DROP TABLE IF EXISTS carts",
			} {
				if _, err := q.Exec(stmt); err != nil {
					return Classify(err)
				}
			}
		}

		for i, stmt := range ddlStrings(b.Kind()) {
			if _, err := q.Exec(stmt); err != nil {
				return fmt.Errorf("error creating table %d: %w", i, Classify(err))
			}
		}

		// Secondary indexes are a performance concern, not a correctness one.
		for _, stmt := range indexStrings() {
			if _, err := q.Exec(stmt); err != nil {
				log.Warn().Err(err).Msg("index creation failed, continuing")
			}
		}

		if err := seedAdmin(q, opts); err != nil {
			return err
		}
		if opts.SeedSampleData {
			if err := seedSampleQuestions(q); err != nil {
				return err
			}
		}
		return nil
	})
}

// seedAdmin inserts the fixed admin account when no admin exists yet.
// Check-then-insert rather than upsert: an existing admin's password is
// never touched.
func seedAdmin(q Queryer, opts SchemaOptions) error {
	var count int
	if err := q.QueryRow("SELECT COUNT(*) FROM users WHERE role = 'admin'").Scan(&count); err != nil {
		return Classify(err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = q.Exec(
		"INSERT INTO users (username, email, password_hash, role, is_active) VALUES (?, ?, ?, 'admin', TRUE)",
		opts.AdminUsername, opts.AdminEmail, string(hash),
	)
	if err != nil {
		return Classify(err)
	}
	log.Info().Str("email", opts.AdminEmail).Msg("seeded admin user")
	return nil
}

func seedSampleQuestions(q Queryer) error {
	samples := []struct {
		text, answer, subject, topic, difficulty, qtype string
	}{
		{"Which article of the Constitution deals with the Right to Equality?", "Article 14", "Polity", "Fundamental Rights", "Easy", "Objective"},
		{"Explain the doctrine of basic structure with reference to landmark cases.", "See explanation", "Polity", "Constitutional Amendments", "Hard", "Subjective"},
		{"The Tropic of Cancer does not pass through which of the following states?", "Odisha", "Geography", "Physical Geography", "Medium", "Objective"},
	}
	for _, s := range samples {
		_, err := q.Exec(
			`INSERT INTO questions (text, answer, subject, topic, difficulty, question_type)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (text) DO NOTHING`,
			s.text, s.answer, s.subject, s.topic, s.difficulty, s.qtype,
		)
		if err != nil {
			return Classify(err)
		}
	}
	return nil
}
