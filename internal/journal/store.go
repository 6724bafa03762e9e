package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"tradelab/internal/pkg/faults"
	"tradelab/internal/risk"
)

// Entry 状态流转：planned → open → closed（或直接 abandoned）。
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
	StatusAbandoned Status = "abandoned"
)

var validStatuses = map[Status]struct{}{
	StatusPlanned:   {},
	StatusOpen:      {},
	StatusClosed:    {},
	StatusAbandoned: {},
}

// ErrNotFound 表示指定的日志条目不存在。
var ErrNotFound = errors.New("journal: 条目不存在")

// Entry 是一条交易日志：风险计算快照 + 主观笔记。
type Entry struct {
	ID        int64        `json:"id"`
	Symbol    string       `json:"symbol"`
	Direction string       `json:"direction"`
	Status    Status       `json:"status"`
	Risk      *risk.Result `json:"risk,omitempty"`
	Notes     string       `json:"notes"`
	Tags      []string     `json:"tags,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type entryModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Symbol        string         `gorm:"column:symbol;index"`
	Direction     string         `gorm:"column:direction"`
	Status        string         `gorm:"column:status;index"`
	RiskJSON      datatypes.JSON `gorm:"column:risk_json;type:TEXT"`
	Notes         string         `gorm:"column:notes"`
	TagsJSON      datatypes.JSON `gorm:"column:tags_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (entryModel) TableName() string { return "journal_entries" }

// Store 用 Gorm + SQLite 持久化交易日志。
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal store: 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&entryModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：给 HTTP 并发读留一点余量，同时控制锁竞争
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create 校验后写入新条目，返回带 ID 的完整记录。
func (s *Store) Create(ctx context.Context, e Entry) (Entry, error) {
	if s == nil || s.db == nil {
		return Entry{}, fmt.Errorf("journal store 未初始化")
	}
	e.Symbol = strings.ToUpper(strings.TrimSpace(e.Symbol))
	if e.Symbol == "" {
		return Entry{}, faults.Validationf("symbol", "不能为空")
	}
	if e.Status == "" {
		e.Status = StatusPlanned
	}
	if _, ok := validStatuses[e.Status]; !ok {
		return Entry{}, faults.Validationf("status", "非法状态 %q", e.Status)
	}
	now := time.Now()
	model, err := newEntryModel(e, now)
	if err != nil {
		return Entry{}, err
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return Entry{}, err
	}
	return entryModelToRecord(model)
}

// Get 按 ID 取条目，不存在时返回 ErrNotFound。
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	if s == nil || s.db == nil {
		return Entry{}, fmt.Errorf("journal store 未初始化")
	}
	var model entryModel
	if err := s.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return entryModelToRecord(model)
}

// ListFilter 为空的字段不参与过滤。
type ListFilter struct {
	Symbol string
	Status Status
	Limit  int
	Offset int
}

// List 按创建时间倒序返回条目。
func (s *Store) List(ctx context.Context, f ListFilter) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("journal store 未初始化")
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := s.db.WithContext(ctx).Model(&entryModel{})
	if sym := strings.ToUpper(strings.TrimSpace(f.Symbol)); sym != "" {
		query = query.Where("symbol = ?", sym)
	}
	if f.Status != "" {
		if _, ok := validStatuses[f.Status]; !ok {
			return nil, faults.Validationf("status", "非法状态 %q", f.Status)
		}
		query = query.Where("status = ?", string(f.Status))
	}
	var models []entryModel
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(models))
	for _, m := range models {
		rec, err := entryModelToRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Update 只允许改 status、notes 与 tags，风险快照写入后不可变。
type Update struct {
	Status *Status  `json:"status,omitempty"`
	Notes  *string  `json:"notes,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

func (s *Store) Update(ctx context.Context, id int64, upd Update) (Entry, error) {
	if s == nil || s.db == nil {
		return Entry{}, fmt.Errorf("journal store 未初始化")
	}
	payload := map[string]interface{}{
		"updated_at": time.Now().UnixMilli(),
	}
	if upd.Status != nil {
		if _, ok := validStatuses[*upd.Status]; !ok {
			return Entry{}, faults.Validationf("status", "非法状态 %q", *upd.Status)
		}
		payload["status"] = string(*upd.Status)
	}
	if upd.Notes != nil {
		payload["notes"] = *upd.Notes
	}
	if upd.Tags != nil {
		raw, err := json.Marshal(upd.Tags)
		if err != nil {
			return Entry{}, err
		}
		payload["tags_json"] = datatypes.JSON(raw)
	}
	res := s.db.WithContext(ctx).Model(&entryModel{}).Where("id = ?", id).Updates(payload)
	if res.Error != nil {
		return Entry{}, res.Error
	}
	if res.RowsAffected == 0 {
		return Entry{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("journal store 未初始化")
	}
	res := s.db.WithContext(ctx).Delete(&entryModel{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --------------------------- Model Helpers ------------------------------

func newEntryModel(e Entry, now time.Time) (entryModel, error) {
	model := entryModel{
		Symbol:        e.Symbol,
		Direction:     strings.ToLower(strings.TrimSpace(e.Direction)),
		Status:        string(e.Status),
		Notes:         e.Notes,
		CreatedAtUnix: now.UnixMilli(),
		UpdatedAtUnix: now.UnixMilli(),
	}
	if e.Risk != nil {
		raw, err := json.Marshal(e.Risk)
		if err != nil {
			return entryModel{}, err
		}
		model.RiskJSON = datatypes.JSON(raw)
	}
	if len(e.Tags) > 0 {
		raw, err := json.Marshal(e.Tags)
		if err != nil {
			return entryModel{}, err
		}
		model.TagsJSON = datatypes.JSON(raw)
	}
	return model, nil
}

func entryModelToRecord(m entryModel) (Entry, error) {
	e := Entry{
		ID:        m.ID,
		Symbol:    m.Symbol,
		Direction: m.Direction,
		Status:    Status(m.Status),
		Notes:     m.Notes,
		CreatedAt: time.UnixMilli(m.CreatedAtUnix).UTC(),
		UpdatedAt: time.UnixMilli(m.UpdatedAtUnix).UTC(),
	}
	if len(m.RiskJSON) > 0 {
		var r risk.Result
		if err := json.Unmarshal(m.RiskJSON, &r); err != nil {
			return Entry{}, fmt.Errorf("journal: 条目 %d 的 risk_json 损坏: %w", m.ID, err)
		}
		e.Risk = &r
	}
	if len(m.TagsJSON) > 0 {
		if err := json.Unmarshal(m.TagsJSON, &e.Tags); err != nil {
			return Entry{}, fmt.Errorf("journal: 条目 %d 的 tags_json 损坏: %w", m.ID, err)
		}
	}
	return e, nil
}
