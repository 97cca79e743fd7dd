// service_test is responsible for ensuring that files from the
// host filesystem are correctly detected, ingested in to the object
// store, and registered in the database. Derivative generation is
// mocked; the database, object store and journal are real.
package ingest_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hbomb79/Stash/internal/catalog"
	"github.com/hbomb79/Stash/internal/database"
	"github.com/hbomb79/Stash/internal/database/dbtest"
	"github.com/hbomb79/Stash/internal/digest"
	"github.com/hbomb79/Stash/internal/ffmpeg"
	"github.com/hbomb79/Stash/internal/ingest"
	"github.com/hbomb79/Stash/internal/ingest/mocks"
	"github.com/hbomb79/Stash/internal/journal"
	"github.com/hbomb79/Stash/internal/objectstore"
	"github.com/hbomb79/Stash/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errExpected = errors.New("test: expected error")

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type harness struct {
	db          *database.Manager
	root        string
	scratch     string
	objects     *objectstore.Store
	journal     *journal.Journal
	derivatives *mocks.MockDerivatives
}

func newHarness(t *testing.T) *harness {
	base := t.TempDir()
	objects, err := objectstore.New(filepath.Join(base, "objects"))
	require.NoError(t, err)

	j, err := journal.Open(filepath.Join(base, "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	root := filepath.Join(base, "pending")
	scratch := filepath.Join(base, "temp")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.MkdirAll(scratch, 0o755))

	return &harness{
		db:          dbtest.NewManager(t),
		root:        root,
		scratch:     scratch,
		objects:     objects,
		journal:     j,
		derivatives: mocks.NewMockDerivatives(t),
	}
}

func (h *harness) config(parallelism int) ingest.Config {
	return ingest.Config{
		IngestPath:           h.root,
		Extensions:           []string{".mp4"},
		DeriveTags:           true,
		IngestionParallelism: parallelism,
	}
}

func (h *harness) service(t *testing.T, config ingest.Config, store ingest.Catalog, objects ingest.ObjectStore) *ingest.Service {
	if store == nil {
		store = catalog.NewStore()
	}
	if objects == nil {
		objects = h.objects
	}

	srv, err := ingest.New(config, h.db, store, h.derivatives, objects, h.journal)
	require.NoError(t, err)
	return srv
}

func (h *harness) writeVideo(t *testing.T, rel string, content string) string {
	path := filepath.Join(h.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// coverFrom returns a MakeCover implementation which writes a cover to the
// scratch directory. The content of the cover is provided by the function given.
func (h *harness) coverFrom(content func(videoPath string) string) func(context.Context, string) (*ffmpeg.Cover, error) {
	var n atomic.Int32
	return func(ctx context.Context, videoPath string) (*ffmpeg.Cover, error) {
		path := filepath.Join(h.scratch, fmt.Sprintf("cover-%d-%s.png", n.Add(1), filepath.Base(videoPath)))
		if err := os.WriteFile(path, []byte(content(videoPath)), 0o644); err != nil {
			return nil, err
		}

		d, err := digest.File(ctx, path, digest.WithProgress(nil, 0))
		if err != nil {
			return nil, err
		}

		return &ffmpeg.Cover{Path: path, ID: d.ID, Size: d.Size}, nil
	}
}

// uniqueCovers derives the cover content from the content of the video,
// so identical videos produce identical covers.
func uniqueCovers(videoPath string) string {
	content, _ := os.ReadFile(videoPath)
	return "cover:" + string(content)
}

func idOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func countRows(t *testing.T, db *database.Manager, table string) int {
	var count int
	require.NoError(t, db.GetSqlxDb().Get(&count, `SELECT COUNT(*) FROM `+table))
	return count
}

func rawTags(t *testing.T, db *database.Manager, id string) string {
	var tags string
	require.NoError(t, db.GetSqlxDb().Get(&tags, db.GetSqlxDb().Rebind(`SELECT tags FROM videos WHERE id=?`), id))
	return tags
}

func assertPlaced(t *testing.T, objects *objectstore.Store, ids ...string) {
	for _, id := range ids {
		has, err := objects.Has(id)
		require.NoError(t, err)
		assert.Truef(t, has, "expected blob %s to be placed", id)
	}
}

func assertJournalEmpty(t *testing.T, j *journal.Journal) {
	entries, err := j.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func Test_Ingest_RegistersAndPlaces(t *testing.T) {
	h := newHarness(t)
	source := h.writeVideo(t, "Comedy/clip1/x.mp4", "video-a")
	h.writeVideo(t, "Comedy/clip1/notes.txt", "ignored")

	h.derivatives.EXPECT().MakeCover(mock.Anything, source).RunAndReturn(h.coverFrom(uniqueCovers))
	h.derivatives.EXPECT().ProbeDuration(mock.Anything, source).Return(93)

	report, err := h.service(t, h.config(1), nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Discovered)
	assert.Equal(t, 1, report.Ingested)
	assert.Zero(t, report.Troubled)

	videoID, coverID := idOf("video-a"), idOf("cover:video-a")
	assert.Equal(t, 2, countRows(t, h.db, "objects"))
	assert.Equal(t, 1, countRows(t, h.db, "videos"))
	assert.Equal(t, `["Comedy"]`, rawTags(t, h.db, videoID))

	err = database.WithTransaction(context.Background(), h.db, database.Manual, func(conn *database.Conn) error {
		video, err := catalog.NewStore().GetVideo(conn, videoID)
		require.NoError(t, err)
		assert.Equal(t, coverID, video.CoverID)
		assert.Equal(t, 93, video.Duration)

		cover, err := catalog.NewStore().GetObject(conn, coverID)
		require.NoError(t, err)
		assert.Equal(t, "x.mp4.png", cover.Filename)
		return nil
	})
	require.NoError(t, err)

	assertPlaced(t, h.objects, videoID, coverID)
	assert.NoFileExists(t, source)
	assertJournalEmpty(t, h.journal)

	entries, err := os.ReadDir(h.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "cover should have been moved out of scratch")
	assert.Equal(t, ingest.PLACED, report.Items[0].State)
	assert.Equal(t, []string{"Comedy"}, report.Items[0].Tags)
}

func Test_Ingest_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.writeVideo(t, "a.mp4", "video-a")

	h.derivatives.EXPECT().MakeCover(mock.Anything, mock.Anything).RunAndReturn(h.coverFrom(uniqueCovers)).Once()
	h.derivatives.EXPECT().ProbeDuration(mock.Anything, mock.Anything).Return(10).Once()

	report, err := h.service(t, h.config(1), nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Ingested)

	// The same content appearing again (under any name) is skipped by a
	// fresh service, which loads its index from the database.
	duplicate := h.writeVideo(t, "Other/renamed.mp4", "video-a")
	report, err = h.service(t, h.config(1), nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Discovered)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Ingested)
	assert.Equal(t, ingest.DUPLICATE_SKIPPED, report.Items[0].State)

	assert.FileExists(t, duplicate, "skipped files are left where they are")
	assert.Equal(t, 2, countRows(t, h.db, "objects"))
	assert.Equal(t, 1, countRows(t, h.db, "videos"))
}

type failingVideoCatalog struct {
	*catalog.Store
}

func (failingVideoCatalog) InsertVideo(database.Queryable, *catalog.Video) error {
	return errExpected
}

func Test_Ingest_FailedRegistrationRollsBack(t *testing.T) {
	h := newHarness(t)
	source := h.writeVideo(t, "Comedy/x.mp4", "video-a")

	h.derivatives.EXPECT().MakeCover(mock.Anything, source).RunAndReturn(h.coverFrom(uniqueCovers))
	h.derivatives.EXPECT().ProbeDuration(mock.Anything, source).Return(93)

	srv := h.service(t, h.config(1), failingVideoCatalog{catalog.NewStore()}, nil)
	report, err := srv.Run(context.Background())
	require.NoError(t, err, "per-file failures must not fail the run")
	assert.Equal(t, 1, report.Troubled)

	item := report.Items[0]
	assert.Equal(t, ingest.ROLLED_BACK, item.State)
	require.NotNil(t, item.Trouble)
	assert.Equal(t, ingest.REGISTRATION_FAILURE, item.Trouble.Type())
	assert.ErrorIs(t, item.Trouble, errExpected)

	// Neither object row survives, nothing is moved
	assert.Zero(t, countRows(t, h.db, "objects"))
	assert.Zero(t, countRows(t, h.db, "videos"))
	assert.FileExists(t, source)
	has, err := h.objects.Has(idOf("video-a"))
	require.NoError(t, err)
	assert.False(t, has)
	assertJournalEmpty(t, h.journal)

	_, indexed, err := srv.Index().Lookup(idOf("video-a"))
	require.NoError(t, err)
	assert.False(t, indexed, "rolled back content must not be indexed")

	entries, err := os.ReadDir(h.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "rolled back cover should be discarded")
}

func Test_Ingest_ReusesExistingCover(t *testing.T) {
	h := newHarness(t)
	h.writeVideo(t, "a.mp4", "video-a")
	h.writeVideo(t, "b.mp4", "video-b")

	sameCover := func(string) string { return "black-frame" }
	h.derivatives.EXPECT().MakeCover(mock.Anything, mock.Anything).RunAndReturn(h.coverFrom(sameCover)).Times(2)
	h.derivatives.EXPECT().ProbeDuration(mock.Anything, mock.Anything).Return(0).Times(2)

	report, err := h.service(t, h.config(1), nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Ingested)

	coverID := idOf("black-frame")
	assert.Equal(t, 3, countRows(t, h.db, "objects"))
	assert.Equal(t, 2, countRows(t, h.db, "videos"))

	var referencing int
	require.NoError(t, h.db.GetSqlxDb().Get(&referencing, h.db.GetSqlxDb().Rebind(`SELECT COUNT(*) FROM videos WHERE coverid=?`), coverID))
	assert.Equal(t, 2, referencing)

	assertPlaced(t, h.objects, idOf("video-a"), idOf("video-b"), coverID)
	entries, err := os.ReadDir(h.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "the reused cover's duplicate should be discarded")
}

func Test_Ingest_ConcurrentDuplicatesRegisterOnce(t *testing.T) {
	h := newHarness(t)
	const copies = 6
	for i := 0; i < copies; i++ {
		h.writeVideo(t, fmt.Sprintf("Dir%d/clip.mp4", i), "identical")
	}

	h.derivatives.EXPECT().MakeCover(mock.Anything, mock.Anything).RunAndReturn(h.coverFrom(uniqueCovers))
	h.derivatives.EXPECT().ProbeDuration(mock.Anything, mock.Anything).Return(5).Maybe()

	report, err := h.service(t, h.config(4), nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, copies, report.Discovered)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, copies-1, report.Skipped)

	assert.Equal(t, 1, countRows(t, h.db, "videos"))
	assert.Equal(t, 2, countRows(t, h.db, "objects"))
	assertPlaced(t, h.objects, idOf("identical"))

	remaining := 0
	for i := 0; i < copies; i++ {
		if _, err := os.Stat(filepath.Join(h.root, fmt.Sprintf("Dir%d/clip.mp4", i))); err == nil {
			remaining++
		}
	}
	assert.Equal(t, copies-1, remaining, "exactly one source should have been moved")

	entries, err := os.ReadDir(h.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func Test_Ingest_PlacementFailureIsReported(t *testing.T) {
	h := newHarness(t)
	source := h.writeVideo(t, "a.mp4", "video-a")
	videoID, coverID := idOf("video-a"), idOf("cover:video-a")

	h.derivatives.EXPECT().MakeCover(mock.Anything, source).RunAndReturn(h.coverFrom(uniqueCovers))
	h.derivatives.EXPECT().ProbeDuration(mock.Anything, source).Return(1)

	objects := mocks.NewMockObjectStore(t)
	objects.EXPECT().Place(source, videoID).Return(errExpected)
	objects.EXPECT().Place(mock.Anything, coverID).RunAndReturn(h.objects.Place)

	report, err := h.service(t, h.config(1), nil, objects).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unplaced)
	assert.Zero(t, report.Ingested)

	item := report.Items[0]
	require.NotNil(t, item.Trouble)
	assert.Equal(t, ingest.PLACEMENT_FAILURE, item.Trouble.Type())

	// The registration is durable, and the journal remembers the owed placement
	assert.Equal(t, 2, countRows(t, h.db, "objects"))
	entries, err := h.journal.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, videoID, entries[0].ID)
	assert.Equal(t, source, entries[0].Source)
	assert.Equal(t, journal.KindVideo, entries[0].Kind)
}

func Test_Ingest_DerivativeFailureIsTroubled(t *testing.T) {
	h := newHarness(t)
	source := h.writeVideo(t, "a.mp4", "video-a")
	h.derivatives.EXPECT().MakeCover(mock.Anything, source).Return(nil, errExpected)

	report, err := h.service(t, h.config(1), nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Troubled)

	item := report.Items[0]
	assert.Equal(t, ingest.TROUBLED, item.State)
	assert.Equal(t, ingest.DERIVATIVE_FAILURE, item.Trouble.Type())
	assert.Zero(t, countRows(t, h.db, "objects"))
	assert.FileExists(t, source)
}

func Test_Ingest_TagsDisabled(t *testing.T) {
	h := newHarness(t)
	h.writeVideo(t, "Comedy/clip1/x.mp4", "video-a")
	h.derivatives.EXPECT().MakeCover(mock.Anything, mock.Anything).RunAndReturn(h.coverFrom(uniqueCovers))
	h.derivatives.EXPECT().ProbeDuration(mock.Anything, mock.Anything).Return(0)

	config := h.config(1)
	config.DeriveTags = false
	report, err := h.service(t, config, nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Ingested)

	assert.Equal(t, "[]", rawTags(t, h.db, idOf("video-a")))
}

func Test_Ingest_RecentlyModifiedFilesAreHeld(t *testing.T) {
	h := newHarness(t)
	h.writeVideo(t, "a.mp4", "video-a")

	config := h.config(1)
	config.RequiredModTimeAgeSeconds = 3600
	report, err := h.service(t, config, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Held)
	assert.Zero(t, report.Discovered)
	assert.Zero(t, countRows(t, h.db, "objects"))
}

func Test_Ingest_MissingRootFails(t *testing.T) {
	h := newHarness(t)
	config := h.config(1)
	config.IngestPath = filepath.Join(h.root, "missing")

	_, err := h.service(t, config, nil, nil).Run(context.Background())
	assert.Error(t, err)
}

// staleCatalog reports no objects the first time the index is loaded,
// as if another process committed them after the index was built.
type staleCatalog struct {
	*catalog.Store
	loads atomic.Int32
}

func (c *staleCatalog) AllObjectNames(db database.Queryable) (map[string]string, error) {
	if c.loads.Add(1) == 1 {
		return map[string]string{}, nil
	}

	return c.Store.AllObjectNames(db)
}

func Test_Ingest_StaleIndexIsRefreshedAndRetried(t *testing.T) {
	h := newHarness(t)
	source := h.writeVideo(t, "a.mp4", "video-a")
	videoID, coverID := idOf("video-a"), idOf("cover:video-a")

	err := database.WithTransaction(context.Background(), h.db, database.Manual, func(conn *database.Conn) error {
		if err := catalog.NewStore().InsertObject(conn, &catalog.Object{ID: coverID, Filename: "elsewhere.png", ModTime: time.Now(), Size: 1}); err != nil {
			return err
		}
		return conn.Commit(false)
	})
	require.NoError(t, err)

	h.derivatives.EXPECT().MakeCover(mock.Anything, source).RunAndReturn(h.coverFrom(uniqueCovers))
	h.derivatives.EXPECT().ProbeDuration(mock.Anything, source).Return(4)

	store := &staleCatalog{Store: catalog.NewStore()}
	report, err := h.service(t, h.config(1), store, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Ingested)
	assert.Equal(t, ingest.PLACED, report.Items[0].State)
	assert.Nil(t, report.Items[0].Trouble)

	// The first registration conflicts on the cover, the refresh reloads
	// the index, and the retry reuses the existing cover.
	assert.Equal(t, int32(2), store.loads.Load())
	assert.Equal(t, 2, countRows(t, h.db, "objects"))
	assert.Equal(t, 1, countRows(t, h.db, "videos"))

	var referenced string
	require.NoError(t, h.db.GetSqlxDb().Get(&referenced, h.db.GetSqlxDb().Rebind(`SELECT coverid FROM videos WHERE id=?`), videoID))
	assert.Equal(t, coverID, referenced)

	assertPlaced(t, h.objects, videoID)
	assertJournalEmpty(t, h.journal)
	entries, err := os.ReadDir(h.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "the conflicting cover should be discarded")
}

func Test_Ingest_LogsCarryItemID(t *testing.T) {
	h := newHarness(t)
	h.writeVideo(t, "a.mp4", "video-a")
	h.derivatives.EXPECT().MakeCover(mock.Anything, mock.Anything).Return(nil, errExpected)

	path := filepath.Join(t.TempDir(), "ingest.log")
	logger.EnableFileOutput(logger.FileConfig{Path: path, MaxSizeMB: 1})
	t.Cleanup(logger.Close)

	report, err := h.service(t, h.config(1), nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	logger.Close()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	id := report.Items[0].ID.String()
	assert.Contains(t, string(content), "Beginning ingestion of "+report.Items[0].Path+" (item "+id)
	assert.Contains(t, string(content), "Failed to generate derivatives for "+report.Items[0].Path+" (item "+id)
}
