// Package catalog records capture runs in a MySQL database.
package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"rawcap/video"
)

var ErrNotFound = errors.New("run not found")

// Run is one capture, from start to finish.
type Run struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	Source     string `json:"source"`
	Output     string `json:"output"`
	FourCC     string `gorm:"size:4" json:"fourcc"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FrameRateN int    `json:"frame_rate_n"`
	FrameRateD int    `json:"frame_rate_d"`
	QueueDepth int    `json:"queue_depth"`

	StartedAt  time.Time  `gorm:"index" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	FramesCaptured int    `json:"frames_captured"`
	FramesWritten  uint64 `json:"frames_written"`
	FramesDropped  uint64 `json:"frames_dropped"`
	FramesSkipped  uint64 `json:"frames_skipped"`
	BytesWritten   uint64 `json:"bytes_written"`

	Reason string `json:"reason,omitempty"`
	Error  string `gorm:"type:text" json:"error,omitempty"`
}

func (Run) TableName() string {
	return "capture_runs"
}

// Open connects to the MySQL database at dsn. Queries are logged through
// logger, slow ones at warning.
func Open(dsn string, logger log.FieldLogger) (*gorm.DB, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Warn,
		}),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	return db, nil
}

type Catalog struct {
	db  *gorm.DB
	log log.FieldLogger
}

// New prepares the schema and returns a catalog backed by db.
func New(db *gorm.DB, logger log.FieldLogger) (*Catalog, error) {
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, errors.Wrap(err, "migrate catalog")
	}
	return newCatalog(db, logger), nil
}

func newCatalog(db *gorm.DB, logger log.FieldLogger) *Catalog {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Catalog{db: db, log: logger}
}

// Start assigns the run an identifier, unless it has one, and inserts it.
func (c *Catalog) Start(r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if err := c.db.Create(r).Error; err != nil {
		return errors.Wrapf(err, "record run %s", r.ID)
	}
	c.log.WithField("run", r.ID).Info("Run recorded in catalog")
	return nil
}

// Finish stores the outcome of a run.
func (c *Catalog) Finish(r *Run, rs video.RunStats, ws video.Stats, runErr error) error {
	finished := rs.Stopped
	if finished.IsZero() {
		finished = time.Now()
	}
	r.FinishedAt = &finished
	r.FramesCaptured = rs.Captured
	r.FramesWritten = ws.Written
	r.FramesDropped = ws.Dropped
	r.FramesSkipped = ws.Skipped
	r.BytesWritten = ws.BytesWritten
	r.Reason = rs.Reason
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if err := c.db.Save(r).Error; err != nil {
		return errors.Wrapf(err, "update run %s", r.ID)
	}
	return nil
}

// Get loads a run by identifier.
func (c *Catalog) Get(id string) (*Run, error) {
	r := &Run{}
	err := c.db.Where("id = ?", id).First(r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "%s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load run %s", id)
	}
	return r, nil
}

// Recent returns up to limit runs, newest first.
func (c *Catalog) Recent(limit int) ([]Run, error) {
	var runs []Run
	if err := c.db.Order("started_at desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	return runs, nil
}
