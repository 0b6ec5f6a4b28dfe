package fixtures

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staticpress2019/e2e/internal/database"
	"github.com/staticpress2019/e2e/internal/wpoptions"
)

func TestDefaultFixture(t *testing.T) {
	doc, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "WpOption", doc.Entity)
	assert.Equal(t, []wpoptions.Option{
		{Name: wpoptions.KeyStaticURL, Value: "http://example.org/sub/", Autoload: "yes"},
		{Name: wpoptions.KeyStaticDir, Value: "/var/www/web/static/", Autoload: "yes"},
		{Name: wpoptions.KeyTimeout, Value: "20", Autoload: "yes"},
	}, doc.Options())
	assert.Equal(t, "static_url", doc.Items[0].Key)
}

func TestParseKeepsFileOrderAndDefaultsAutoload(t *testing.T) {
	doc, err := Parse("inline", []byte(`
entity: WpOption
items:
  zeta:
    optionName: "z"
    optionValue: "1"
  alpha:
    optionName: "a"
    optionValue: ""
    autoload: "no"
`))
	require.NoError(t, err)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "zeta", doc.Items[0].Key)
	assert.Equal(t, "yes", doc.Items[0].Option.Autoload)
	assert.Equal(t, "alpha", doc.Items[1].Key)
	assert.Equal(t, "no", doc.Items[1].Option.Autoload)
}

func TestParseKeepsUnquotedScalarsVerbatim(t *testing.T) {
	doc, err := Parse("inline", []byte(`
entity: WpOption
items:
  timeout: {optionName: "StaticPress::timeout", optionValue: 20}
  ratio: {optionName: "ratio", optionValue: 0.50}
  flag: {optionName: "flag", optionValue: true}
`))
	require.NoError(t, err)
	require.Len(t, doc.Items, 3)
	assert.Equal(t, "20", doc.Items[0].Option.Value)
	assert.Equal(t, "0.50", doc.Items[1].Option.Value)
	assert.Equal(t, "true", doc.Items[2].Option.Value)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown entity": `
entity: WpUser
items:
  u: {optionName: "x", optionValue: "y"}`,
		"missing value": `
entity: WpOption
items:
  u: {optionName: "x"}`,
		"list value": `
entity: WpOption
items:
  u: {optionName: "StaticPress::timeout", optionValue: [20]}`,
		"null value": `
entity: WpOption
items:
  u: {optionName: "StaticPress::timeout", optionValue: ~}`,
		"no items": `
entity: WpOption
items: {}`,
		"unknown field": `
entity: WpOption
items:
  u: {optionName: "x", optionValue: "y", optionId: 3}`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(name, []byte(src))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Issues)
			assert.Equal(t, name, verr.Source)
		})
	}

	_, err := Parse("broken", []byte("entity: [unterminated"))
	require.Error(t, err)
}

func TestReadDirectory(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("20-timeout.yaml", "entity: WpOption\nitems:\n  t: {optionName: \"StaticPress::timeout\", optionValue: \"5\"}\n")
	write("10-url.yml", "entity: WpOption\nitems:\n  u: {optionName: \"StaticPress::static url\", optionValue: \"http://localhost/\"}\n")
	write("README.md", "not a fixture")

	docs, err := Read(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, filepath.Join(dir, "10-url.yml"), docs[0].Source)
	assert.Equal(t, "5", docs[1].Items[0].Option.Value)

	docs, err = Read("")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	_, err = Read(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	_, err = Read(t.TempDir())
	require.Error(t, err)
}

func mockOpener(t *testing.T) (database.Opener, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return func(context.Context) (*sqlx.DB, error) {
		return sqlx.NewDb(db, "mysql"), nil
	}, mock
}

func TestLoaderUpsertsInOneTransaction(t *testing.T) {
	open, mock := mockOpener(t)
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	upsert := regexp.QuoteMeta("INSERT INTO wp_options (option_name, option_value, autoload) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE")
	mock.ExpectBegin()
	mock.ExpectExec(upsert).WithArgs(wpoptions.KeyStaticURL, "http://example.org/sub/", "yes").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(upsert).WithArgs(wpoptions.KeyStaticDir, "/var/www/web/static/", "yes").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(upsert).WithArgs(wpoptions.KeyTimeout, "20", "yes").WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	docs, err := NewLoader(open, wpoptions.DefaultSchema(), logger).LoadPath(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "fixture loaded", hook.LastEntry().Message)
	assert.Equal(t, 3, hook.LastEntry().Data["rows"])
}

func TestLoaderRollsBackOnFailure(t *testing.T) {
	open, mock := mockOpener(t)
	logger, _ := logtest.NewNullLogger()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wp_options").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO wp_options").WillReturnError(errors.New("table is read only"))
	mock.ExpectRollback()
	mock.ExpectClose()

	doc, err := Default()
	require.NoError(t, err)
	err = NewLoader(open, wpoptions.DefaultSchema(), logger).Load(context.Background(), doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read only")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleaner(t *testing.T) {
	open, mock := mockOpener(t)
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM wp_options WHERE option_name IN (?, ?, ?)")).
		WithArgs(wpoptions.KeyStaticURL, wpoptions.KeyStaticDir, wpoptions.KeyTimeout).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectClose()

	n, err := NewCleaner(open, wpoptions.DefaultSchema(), logger).Clean(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(3), hook.LastEntry().Data["rows"])
}

func TestCleanerConnectFailure(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	refused := errors.New("connection refused")
	_, err := NewCleaner(func(context.Context) (*sqlx.DB, error) { return nil, refused },
		wpoptions.DefaultSchema(), logger).Clean(context.Background())
	require.ErrorIs(t, err, refused)
}
