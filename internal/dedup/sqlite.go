package dedup

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"synthdlg/pkg/contract"
)

// SQLite 为跨运行持久去重索引。
// 查并置以 INSERT OR IGNORE 的受影响行数实现，天然原子；
// 多 worker 共享单连接串行化写入（sqlite 单写者模型）。
type SQLite struct {
	db  *sql.DB
	ins *sql.Stmt
}

// NewSQLite 打开（或创建）索引库。
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("dedup: %w: sqlite path is required", contract.ErrConfig)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("dedup: open sqlite %s: %w", path, err)
	}
	// 单连接：避免 WAL 下多连接写冲突
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS seen_keys (
		key TEXT PRIMARY KEY,
		first_seen INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("dedup: init schema: %w", err)
	}
	ins, err := db.Prepare(`INSERT OR IGNORE INTO seen_keys(key, first_seen) VALUES(?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("dedup: prepare: %w", err)
	}
	return &SQLite{db: db, ins: ins}, nil
}

// Seen 实现 contract.DedupIndex。
func (s *SQLite) Seen(key string) (bool, error) {
	res, err := s.ins.Exec(key, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("dedup: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup: rows affected: %w", err)
	}
	return n == 0, nil
}

// Count 返回索引内键数（诊断用）。
func (s *SQLite) Count() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM seen_keys`).Scan(&n)
	return n, err
}

func (s *SQLite) Close() error {
	_ = s.ins.Close()
	return s.db.Close()
}

var (
	_ contract.DedupIndex = (*Memory)(nil)
	_ contract.DedupIndex = (*SQLite)(nil)
)
