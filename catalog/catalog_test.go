package catalog

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.viam.com/test"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"rawcap/video"
)

// dryRun returns a catalog whose statements are built but never sent, and
// the SQL of every statement it built.
func dryRun(t *testing.T) (*Catalog, *[]string) {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "rawcap:secret@tcp(127.0.0.1:3306)/rawcap?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Discard,
	})
	test.That(t, err, test.ShouldBeNil)

	var sqls []string
	record := func(tx *gorm.DB) {
		sqls = append(sqls, tx.Statement.SQL.String())
	}
	test.That(t, db.Callback().Create().After("gorm:create").Register("test:record_create", record), test.ShouldBeNil)
	test.That(t, db.Callback().Update().After("gorm:update").Register("test:record_update", record), test.ShouldBeNil)
	test.That(t, db.Callback().Query().After("gorm:query").Register("test:record_query", record), test.ShouldBeNil)

	logger, _ := logtest.NewNullLogger()
	return newCatalog(db, logger), &sqls
}

func TestStartAssignsID(t *testing.T) {
	c, sqls := dryRun(t)

	r := &Run{Source: "pattern", Output: "-", FourCC: "P216", Width: 1920, Height: 1080}
	test.That(t, c.Start(r), test.ShouldBeNil)

	_, err := uuid.Parse(r.ID)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.StartedAt.IsZero(), test.ShouldBeFalse)
	test.That(t, len(*sqls), test.ShouldEqual, 1)
	test.That(t, (*sqls)[0], test.ShouldStartWith, "INSERT INTO `capture_runs`")
	test.That(t, (*sqls)[0], test.ShouldContainSubstring, "`four_cc`")
}

func TestStartKeepsGivenID(t *testing.T) {
	c, _ := dryRun(t)
	r := &Run{ID: "fixed"}
	test.That(t, c.Start(r), test.ShouldBeNil)
	test.That(t, r.ID, test.ShouldEqual, "fixed")
}

func TestFinishStoresOutcome(t *testing.T) {
	c, sqls := dryRun(t)

	r := &Run{ID: uuid.NewString(), StartedAt: time.Now().Add(-time.Minute)}
	stopped := time.Now()
	rs := video.RunStats{Captured: 12, Reason: "writer failed", Stopped: stopped}
	ws := video.Stats{Written: 10, Dropped: 2, Skipped: 2, BytesWritten: 1000}

	err := c.Finish(r, rs, ws, &video.FatalError{Op: "write frame", Err: errors.New("disk full")})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, r.FinishedAt, test.ShouldNotBeNil)
	test.That(t, r.FinishedAt.Equal(stopped), test.ShouldBeTrue)
	test.That(t, r.FramesCaptured, test.ShouldEqual, 12)
	test.That(t, r.FramesWritten, test.ShouldEqual, uint64(10))
	test.That(t, r.FramesDropped, test.ShouldEqual, uint64(2))
	test.That(t, r.BytesWritten, test.ShouldEqual, uint64(1000))
	test.That(t, r.Error, test.ShouldEqual, "write frame: disk full")
	test.That(t, r.Reason, test.ShouldEqual, "writer failed")

	test.That(t, len(*sqls), test.ShouldEqual, 1)
	test.That(t, (*sqls)[0], test.ShouldStartWith, "UPDATE `capture_runs`")
	test.That(t, (*sqls)[0], test.ShouldContainSubstring, "WHERE `id` = ?")
}

func TestQueries(t *testing.T) {
	c, sqls := dryRun(t)

	_, err := c.Get("abc")
	test.That(t, err, test.ShouldBeNil)
	_, err = c.Recent(5)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, len(*sqls), test.ShouldEqual, 2)
	test.That(t, (*sqls)[0], test.ShouldContainSubstring, "WHERE id = ?")
	test.That(t, (*sqls)[0], test.ShouldContainSubstring, "LIMIT 1")
	test.That(t, (*sqls)[1], test.ShouldContainSubstring, "ORDER BY started_at desc LIMIT 5")
}
