//go:build e2e

package e2e

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staticpress2019/e2e/internal/database"
	"github.com/staticpress2019/e2e/internal/wpoptions"
	"github.com/staticpress2019/e2e/tests/e2e/helpers"
)

func TestStaticPress2019(t *testing.T) {
	h := helpers.NewBrowserHelper(t)
	require.NoError(t, h.Setup(), "Failed to setup browser")
	defer h.TearDown()

	ctx := context.Background()
	sc := h.Scenario
	require.NoError(t, sc.Bootstrap(ctx), "bootstrap")

	t.Run("options are stored", func(t *testing.T) {
		require.NoError(t, sc.ResetFixtures(ctx))
		require.NoError(t, sc.ConfigureOptions(ctx))
		require.NoError(t, sc.VerifyOptions(ctx))

		err := database.WithConnection(ctx, database.MySQL(h.Config.Database), func(ctx context.Context, db *sqlx.DB) error {
			store, err := wpoptions.NewStore(db, h.Config.OptionsTable)
			if err != nil {
				return err
			}
			got, err := store.GetMany(ctx, wpoptions.ManagedKeys()...)
			if err != nil {
				return err
			}
			for name, want := range h.Config.ExpectedOptions() {
				assert.Equal(t, want, got[name].Value, name)
			}
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("rebuild dumps the front page", func(t *testing.T) {
		want, err := h.Config.ExpectedResultPath()
		require.NoError(t, err)
		results, err := sc.Rebuild(ctx)
		require.NoError(t, err)
		assert.Contains(t, results, want)
	})
}
