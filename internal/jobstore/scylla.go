package jobstore

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// Config locates the ScyllaDB cluster.
type Config struct {
	Hosts    []string
	Keyspace string
}

// Store owns the gocql session shared by the job repository and the audit log.
type Store struct {
	session  *gocql.Session
	keyspace string
}

// Connect creates a session against the cluster and ensures the keyspace and
// tables exist. The worker refuses to start when this fails: an unreachable
// job store would mean silently dropped status updates.
func Connect(cfg Config) (*Store, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 10 * time.Second

	// First session without keyspace, to create it if missing.
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to scylladb: %w", err)
	}

	err = session.Query(fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`,
		cfg.Keyspace,
	)).Exec()
	session.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to create keyspace %s: %w", cfg.Keyspace, err)
	}

	cluster.Keyspace = cfg.Keyspace
	session, err = cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to keyspace %s: %w", cfg.Keyspace, err)
	}

	store := &Store{session: session, keyspace: cfg.Keyspace}
	if err := store.ensureSchema(); err != nil {
		session.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS indexing_jobs (
			id text PRIMARY KEY,
			user_id text,
			filename text,
			topic text,
			mime_type text,
			status text,
			chunks_created int,
			error_message text,
			created_at timestamp,
			updated_at timestamp
		)`,
		`CREATE INDEX IF NOT EXISTS indexing_jobs_user_idx ON indexing_jobs (user_id)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id timeuuid PRIMARY KEY,
			user_id text,
			action text,
			service text,
			detail text,
			created_at timestamp
		)`,
	}

	for _, stmt := range statements {
		if err := s.session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close tears down the session.
func (s *Store) Close() {
	if s.session != nil {
		s.session.Close()
	}
}
