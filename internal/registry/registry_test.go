package registry

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ariadne/internal/provenance"
	"github.com/roach88/ariadne/internal/rundir"
	"github.com/roach88/ariadne/internal/store"
	"github.com/roach88/ariadne/internal/testutil"
)

type testEnv struct {
	reg     *Registry
	dbPath  string
	baseDir string
	clock   *testutil.DeterministicClock
}

// newTestEnv builds a registry in a temp dir with a deterministic clock and
// no VCS probing. Extra options are applied last.
func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dbPath:  filepath.Join(dir, "test_ariadne.db"),
		baseDir: filepath.Join(dir, "experiments"),
		clock:   testutil.NewDeterministicClock(),
	}

	all := append([]Option{
		WithClock(env.clock.Now),
		WithVCS(provenance.None{}),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	}, opts...)

	reg, err := New(env.dbPath, env.baseDir, all...)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	env.reg = reg
	return env
}

// rawDB opens a second connection to the registry database, the way an
// external reader would see it.
func (e *testEnv) rawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", e.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func decodeJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestNew_CreatesDatabaseAndTable(t *testing.T) {
	env := newTestEnv(t)

	assert.FileExists(t, env.dbPath)
	assert.DirExists(t, env.baseDir)

	var name string
	err := env.rawDB(t).QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='experiments'",
	).Scan(&name)
	require.NoError(t, err, "experiments table should be created")
}

func TestNew_Accessors(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, env.dbPath, env.reg.DatabasePath())
	assert.Equal(t, env.baseDir, env.reg.BaseDir())
	assert.Len(t, env.reg.Session(), 36)
}

func TestNew_SessionsDiffer(t *testing.T) {
	a := newTestEnv(t)
	b := newTestEnv(t)
	assert.NotEqual(t, a.reg.Session(), b.reg.Session())
}

func TestNew_BaseDirNotWritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "experiments")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o644))

	_, err := New(filepath.Join(dir, "db.sqlite"), blocker)
	require.Error(t, err)
}

func TestNew_DatabaseUnreachable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o644))

	_, err := New(filepath.Join(blocker, "db.sqlite"), filepath.Join(dir, "experiments"))
	require.Error(t, err)
}

func TestNew_ReopenSeesExistingRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	id, _, err := env.reg.Start(ctx, "persisted", "", nil)
	require.NoError(t, err)
	require.NoError(t, env.reg.Close())

	reg, err := New(env.dbPath, env.baseDir, WithVCS(provenance.None{}))
	require.NoError(t, err)
	defer reg.Close()

	rec, err := reg.Lookup(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "persisted", rec.Name)
}

func TestStart_CreatesFolderConfigAndRow(t *testing.T) {
	env := newTestEnv(t)
	runConfig := Payload{"param1": 10, "param2": "value2"}

	id, folder, err := env.reg.Start(t.Context(), "test_experiment_1", "This is a test note.", runConfig)
	require.NoError(t, err)
	assert.Positive(t, id)

	assert.DirExists(t, folder)
	assert.DirExists(t, filepath.Join(folder, rundir.FiguresDir))
	assert.FileExists(t, filepath.Join(folder, rundir.ConfigFile))
	assert.Equal(t, filepath.Join(env.baseDir, rundir.FolderName("test_experiment_1", id)), folder)

	saved, err := rundir.ReadConfig(folder)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"param1": float64(10), "param2": "value2"}, saved)

	var (
		name, notes, cfg, dbFolder string
		completed                  int
		end                        sql.NullString
	)
	err = env.rawDB(t).QueryRow(
		"SELECT name, notes, run_config, folder, completed, end_timestamp FROM experiments WHERE id = ?", id,
	).Scan(&name, &notes, &cfg, &dbFolder, &completed, &end)
	require.NoError(t, err, "experiment should be in the database")

	assert.Equal(t, "test_experiment_1", name)
	assert.Equal(t, "This is a test note.", notes)
	assert.Equal(t, map[string]any{"param1": float64(10), "param2": "value2"}, decodeJSON(t, cfg))
	assert.Equal(t, folder, dbFolder)
	assert.Equal(t, 0, completed, "experiment should not be completed yet")
	assert.False(t, end.Valid, "end timestamp should be NULL initially")
}

func TestStart_TimestampFromClock(t *testing.T) {
	env := newTestEnv(t)
	want := env.clock.Peek()

	id, _, err := env.reg.Start(t.Context(), "clocked", "", nil)
	require.NoError(t, err)

	var start string
	require.NoError(t, env.rawDB(t).QueryRow(
		"SELECT start_timestamp FROM experiments WHERE id = ?", id).Scan(&start))
	assert.Equal(t, "2024-01-15T09:00:00.000000Z", start)

	parsed, err := store.ParseTime(start)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(want))
}

func TestStart_NilConfigStoredAsEmptyObject(t *testing.T) {
	env := newTestEnv(t)

	id, folder, err := env.reg.Start(t.Context(), "empty", "", nil)
	require.NoError(t, err)

	var cfg string
	require.NoError(t, env.rawDB(t).QueryRow(
		"SELECT run_config FROM experiments WHERE id = ?", id).Scan(&cfg))
	assert.Equal(t, "{}", cfg)

	saved, err := rundir.ReadConfig(folder)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestStart_SameNameGetsDistinctFolders(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	id1, folder1, err := env.reg.Start(ctx, "dup", "", Payload{"run": 1})
	require.NoError(t, err)
	id2, folder2, err := env.reg.Start(ctx, "dup", "", Payload{"run": 2})
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.NotEqual(t, folder1, folder2)

	cfg1, err := rundir.ReadConfig(folder1)
	require.NoError(t, err)
	assert.Equal(t, float64(1), cfg1["run"])
}

func TestStart_UnserializableConfig(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	_, _, err := env.reg.Start(ctx, "bad", "", Payload{"ch": make(chan int)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncode))

	_, _, err = env.reg.Start(ctx, "nan", "", Payload{"loss": math.NaN()})
	assert.ErrorIs(t, err, ErrEncode)

	names, err := env.reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names, "no row should be written for a bad payload")

	entries, err := os.ReadDir(env.baseDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no folder should be created for a bad payload")
}

func TestStart_FolderFailureLeavesNoRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	// The first id SQLite assigns is 1; put a file where its folder goes
	blocker := filepath.Join(env.baseDir, rundir.FolderName("blocked", 1))
	require.NoError(t, os.WriteFile(blocker, []byte("in the way"), 0o644))

	_, _, err := env.reg.Start(ctx, "blocked", "", Payload{"a": 1})
	require.Error(t, err)

	names, err := env.reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	var count int
	require.NoError(t, env.rawDB(t).QueryRow("SELECT COUNT(*) FROM experiments").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestStart_RecordsVCSRevision(t *testing.T) {
	vcs := testutil.NewStaticVCS("0123abcd", "Add dropout")
	env := newTestEnv(t, WithVCS(vcs))

	id, _, err := env.reg.Start(t.Context(), "vcs", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, vcs.Calls())

	var hash, msg sql.NullString
	require.NoError(t, env.rawDB(t).QueryRow(
		"SELECT vc_hash, vc_msg FROM experiments WHERE id = ?", id).Scan(&hash, &msg))
	assert.Equal(t, "0123abcd", hash.String)
	assert.Equal(t, "Add dropout", msg.String)
}

func TestStart_NoVCSStoresNull(t *testing.T) {
	env := newTestEnv(t)

	id, _, err := env.reg.Start(t.Context(), "vcs_test_experiment", "vcs test", nil)
	require.NoError(t, err)

	var hash, msg sql.NullString
	require.NoError(t, env.rawDB(t).QueryRow(
		"SELECT vc_hash, vc_msg FROM experiments WHERE id = ?", id).Scan(&hash, &msg))
	assert.False(t, hash.Valid, "vc_hash should be NULL without a VCS")
	assert.False(t, msg.Valid, "vc_msg should be NULL without a VCS")
}

func TestStart_FailedVCSStoresNull(t *testing.T) {
	vcs := &testutil.StaticVCS{OK: false}
	env := newTestEnv(t, WithVCS(vcs))

	id, _, err := env.reg.Start(t.Context(), "vcs_failed", "", nil)
	require.NoError(t, err)

	rec, err := env.reg.Lookup(t.Context(), id)
	require.NoError(t, err)
	assert.Nil(t, rec.VCHash)
	assert.Nil(t, rec.VCMsg)
}

func TestStart_CapturesCallerSource(t *testing.T) {
	env := newTestEnv(t)

	dummyCaller := func() int64 {
		experimentName := "source_code_test"
		id, _, err := env.reg.Start(t.Context(), experimentName, "src test", nil)
		require.NoError(t, err)
		return id
	}
	id := dummyCaller()

	var src sql.NullString
	require.NoError(t, env.rawDB(t).QueryRow(
		"SELECT source_code FROM experiments WHERE id = ?", id).Scan(&src))
	require.True(t, src.Valid, "source code should not be NULL")
	assert.NotEmpty(t, src.String)
	assert.Contains(t, src.String, "dummyCaller")
	assert.Contains(t, src.String, "source_code_test")
	assert.NotContains(t, src.String, "func (r *Registry) Start")
}

func TestStart_SourceProviderAskedForCaller(t *testing.T) {
	src := &testutil.StaticSource{Text: "func train() {}"}
	env := newTestEnv(t, WithSourceProvider(src))

	id, _, err := env.reg.Start(t.Context(), "stub", "", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, src.Skips())

	rec, err := env.reg.Lookup(t.Context(), id)
	require.NoError(t, err)
	require.NotNil(t, rec.SourceCode)
	assert.Equal(t, "func train() {}", *rec.SourceCode)
}

func TestStart_NoSourceStoresNull(t *testing.T) {
	env := newTestEnv(t, WithSourceProvider(provenance.NoSource{}))

	id, _, err := env.reg.Start(t.Context(), "nosrc", "", nil)
	require.NoError(t, err)

	rec, err := env.reg.Lookup(t.Context(), id)
	require.NoError(t, err)
	assert.Nil(t, rec.SourceCode)
}

func TestLog_WritesPayload(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	id, _, err := env.reg.Start(ctx, "test_log_experiment", "notes", Payload{"lr": 0.01})
	require.NoError(t, err)

	logs := Payload{"epoch": 1, "loss": 0.5, "accuracy": 0.8}
	require.NoError(t, env.reg.Log(ctx, id, logs))

	var raw string
	require.NoError(t, env.rawDB(t).QueryRow("SELECT logs FROM experiments WHERE id = ?", id).Scan(&raw))
	assert.Equal(t, map[string]any{"epoch": float64(1), "loss": 0.5, "accuracy": 0.8}, decodeJSON(t, raw))
}

func TestLog_OverwritesNotMerges(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	id, _, err := env.reg.Start(ctx, "overwrite", "", nil)
	require.NoError(t, err)

	require.NoError(t, env.reg.Log(ctx, id, Payload{"epoch": 1, "loss": 0.9}))
	require.NoError(t, env.reg.Mark(ctx, id, Payload{"epoch": 2}))

	rec, err := env.reg.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Payload{"epoch": float64(2)}, rec.Metrics)
}

func TestLog_UnknownIDIsSilent(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.reg.Log(t.Context(), 12345, Payload{"x": 1}))
	require.NoError(t, env.reg.Mark(t.Context(), 12345, Payload{"x": 1}))
}

func TestLog_UnserializablePayload(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	id, _, err := env.reg.Start(ctx, "badlog", "", nil)
	require.NoError(t, err)
	require.NoError(t, env.reg.Log(ctx, id, Payload{"ok": true}))

	err = env.reg.Log(ctx, id, Payload{"fn": func() {}})
	assert.ErrorIs(t, err, ErrEncode)

	rec, err := env.reg.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Payload{"ok": true}, rec.Metrics, "failed log must not touch the row")
}

func TestGet_PartialMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	expName := "find_me_experiment"
	notes := "Details for find_me"
	runConfig := Payload{"batch_size": 32}

	id1, folder1, err := env.reg.Start(ctx, expName+"_1", notes, runConfig)
	require.NoError(t, err)
	id2, _, err := env.reg.Start(ctx, "another_"+expName+"_2", notes, runConfig)
	require.NoError(t, err)
	_, _, err = env.reg.Start(ctx, "unrelated", notes, runConfig)
	require.NoError(t, err)

	require.NoError(t, env.reg.Mark(ctx, id1, Payload{"step": 100}))
	require.NoError(t, env.reg.Mark(ctx, id2, Payload{"step": 200}))

	results, err := env.reg.Get(ctx, "find_me_experiment")
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[int64]Record{}
	for _, r := range results {
		byID[r.ID] = r
	}

	first, ok := byID[id1]
	require.True(t, ok, "first experiment was not found by get")
	assert.Equal(t, expName+"_1", first.Name)
	assert.Equal(t, notes, first.Notes)
	assert.Equal(t, Payload{"batch_size": float64(32)}, first.RunConfig)
	assert.Equal(t, folder1, first.Folder)
	assert.Equal(t, Payload{"step": float64(100)}, first.Metrics)

	second, ok := byID[id2]
	require.True(t, ok, "second experiment was not found by get")
	assert.Equal(t, "another_"+expName+"_2", second.Name)
	assert.Equal(t, Payload{"step": float64(200)}, second.Metrics)
}

func TestGet_NoMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	_, _, err := env.reg.Start(ctx, "present", "", nil)
	require.NoError(t, err)

	results, err := env.reg.Get(ctx, "non_existent_experiment")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestGet_MetricsNilBeforeFirstLog(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	_, _, err := env.reg.Start(ctx, "unlogged", "", nil)
	require.NoError(t, err)

	results, err := env.reg.Get(ctx, "unlogged")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Metrics)
}

func TestRecord_JSONKeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	id, _, err := env.reg.Start(ctx, "keys", "n", Payload{"a": 1})
	require.NoError(t, err)
	require.NoError(t, env.reg.Log(ctx, id, Payload{"m": 2}))

	rec, err := env.reg.Lookup(ctx, id)
	require.NoError(t, err)

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	m := decodeJSON(t, string(b))

	for _, key := range []string{
		"id", "name", "notes", "run_config", "folder", "start_timestamp",
		"end_timestamp", "completed", "metrics", "vc_hash", "vc_msg", "source_code",
	} {
		assert.Contains(t, m, key)
	}
	assert.NotContains(t, m, "logs")
	assert.Equal(t, map[string]any{"m": float64(2)}, m["metrics"])
}

func TestPeek_Latest(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	exp1ID, _, err := env.reg.Start(ctx, "first_exp", "old", Payload{"val": 1})
	require.NoError(t, err)
	require.NoError(t, env.reg.Mark(ctx, exp1ID, Payload{"m1": 0.1}))

	exp2ID, exp2Folder, err := env.reg.Start(ctx, "latest_exp", "new", Payload{"val": 2})
	require.NoError(t, err)
	require.NoError(t, env.reg.Mark(ctx, exp2ID, Payload{"m1": 0.2}))

	latest, err := env.reg.Peek(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, exp2ID, latest.ID)
	assert.Equal(t, "latest_exp", latest.Name)
	assert.Equal(t, Payload{"val": float64(2)}, latest.RunConfig)
	assert.Equal(t, Payload{"m1": 0.2}, latest.Metrics)
	assert.Equal(t, exp2Folder, latest.Folder)
	assert.Equal(t, "new", latest.Notes)
}

func TestPeek_RealClock(t *testing.T) {
	env := newTestEnv(t, WithClock(time.Now))
	ctx := t.Context()

	_, _, err := env.reg.Start(ctx, "a", "", nil)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	bID, _, err := env.reg.Start(ctx, "b", "", nil)
	require.NoError(t, err)

	latest, err := env.reg.Peek(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, bID, latest.ID)
}

func TestPeek_Empty(t *testing.T) {
	env := newTestEnv(t)

	latest, err := env.reg.Peek(t.Context())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestList_AllNames(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	for _, name := range []string{"exp_a", "exp_b", "exp_c"} {
		_, _, err := env.reg.Start(ctx, name, "", Payload{})
		require.NoError(t, err)
	}

	names, err := env.reg.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "exp_a")
	assert.Contains(t, names, "exp_b")
	assert.Contains(t, names, "exp_c")
	assert.Len(t, names, 3)
}

func TestList_KeepsDuplicatesInOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	for _, name := range []string{"x", "y", "x"} {
		_, _, err := env.reg.Start(ctx, name, "", nil)
		require.NoError(t, err)
	}

	names, err := env.reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "x"}, names)
}

func TestCleanup_MarksCompletedOnce(t *testing.T) {
	env := newTestEnv(t, WithClock(time.Now))
	ctx := t.Context()
	db := env.rawDB(t)

	id, _, err := env.reg.Start(ctx, "cleanup_test_exp", "to be cleaned", Payload{"p": 1})
	require.NoError(t, err)

	var completed int
	var end sql.NullString
	require.NoError(t, db.QueryRow(
		"SELECT completed, end_timestamp FROM experiments WHERE id = ?", id).Scan(&completed, &end))
	assert.Equal(t, 0, completed)
	assert.False(t, end.Valid)

	require.NoError(t, env.reg.Cleanup(ctx, id))

	require.NoError(t, db.QueryRow(
		"SELECT completed, end_timestamp FROM experiments WHERE id = ?", id).Scan(&completed, &end))
	assert.Equal(t, 1, completed)
	require.True(t, end.Valid, "end timestamp should be set")

	endTime, err := store.ParseTime(end.String)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), endTime, 5*time.Second)

	firstEnd := end.String
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, env.reg.Cleanup(ctx, id))

	require.NoError(t, db.QueryRow(
		"SELECT completed, end_timestamp FROM experiments WHERE id = ?", id).Scan(&completed, &end))
	assert.Equal(t, 1, completed)
	assert.Equal(t, firstEnd, end.String, "end timestamp must not change on repeat cleanup")
}

func TestCleanup_UnknownID(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.reg.Cleanup(t.Context(), 404))
}

func TestCleanup_DoesNotTouchOtherFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	id, folder, err := env.reg.Start(ctx, "stable", "keep", Payload{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, env.reg.Log(ctx, id, Payload{"final": 1}))

	before, err := env.reg.Lookup(ctx, id)
	require.NoError(t, err)

	require.NoError(t, env.reg.Cleanup(ctx, id))

	after, err := env.reg.Lookup(ctx, id)
	require.NoError(t, err)
	assert.True(t, after.Completed)
	require.NotNil(t, after.EndTimestamp)
	assert.True(t, after.EndTimestamp.After(after.StartTimestamp))
	assert.Equal(t, before.RunConfig, after.RunConfig)
	assert.Equal(t, before.Metrics, after.Metrics)
	assert.Equal(t, folder, after.Folder)
	assert.Equal(t, before.StartTimestamp, after.StartTimestamp)
}

func TestLookup_Missing(t *testing.T) {
	env := newTestEnv(t)

	rec, err := env.reg.Lookup(t.Context(), 1)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLogger_SessionAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	env := newTestEnv(t, WithLogger(logger))

	_, _, err := env.reg.Start(t.Context(), "logged", "", nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "experiment started")
	assert.Contains(t, out, "session="+env.reg.Session())
	assert.Contains(t, out, "name=logged")
}
