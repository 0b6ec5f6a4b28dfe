package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staticpress2019/e2e/internal/browser"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"chromedp", "playwright", "rod", "static", "webdriver"}, Names())
	assert.True(t, Known("playwright"))
	assert.False(t, Known("puppeteer"))
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open(context.Background(), Config{Name: "puppeteer"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpenWebDriverNeedsRemote(t *testing.T) {
	_, err := Open(context.Background(), Config{Name: WebDriver})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote url")
}

func TestOpenStatic(t *testing.T) {
	d, err := Open(context.Background(), Config{
		Name:  Static,
		Pages: map[string]string{"http://wp.test/": `<h1>Hello</h1>`},
	})
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Navigate(context.Background(), "http://wp.test/", browser.Load))
	els, err := d.Query(context.Background(), browser.ByExactText("h1", "Hello"))
	require.NoError(t, err)
	assert.Len(t, els, 1)
}
