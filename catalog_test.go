package upgrademgr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const catalogFixture = `{
  "models": [
    {
      "family": "Catalyst 9000",
      "series": [
        {"patterns": ["C9200", "C9300"], "image_format": "cat9k_iosxe.<release>.SPA.bin"},
        {"patterns": ["C9500"], "image_format": "cat9k_iosxe.<release>.SPA.bin"}
      ]
    },
    {
      "family": "ISR 4000",
      "series": [
        {"patterns": ["ISR44"], "image_format": "isr4400-universalk9.<release>.SPA.bin"}
      ]
    }
  ]
}`

func TestCatalogSupported(t *testing.T) {
	cat, err := ParseModelCatalog([]byte(catalogFixture))
	require.NoError(t, err)

	require.True(t, cat.Supported("C9300-48P"))
	require.True(t, cat.Supported("c9500-40X"))
	require.True(t, cat.Supported("ISR4451-X/K9"))
	require.False(t, cat.Supported("N9K-C93180YC"))
	require.False(t, cat.Supported("Unknown"))
	require.False(t, cat.Supported(""))
}

func TestCatalogImagePattern(t *testing.T) {
	cat, err := ParseModelCatalog([]byte(catalogFixture))
	require.NoError(t, err)

	re, ok := cat.ImagePattern("C9300-48P")
	require.True(t, ok)
	require.True(t, re.MatchString("cat9k_iosxe.17.09.04a.SPA.bin"))
	require.False(t, re.MatchString("isr4400-universalk9.17.06.05.SPA.bin"))

	_, ok = cat.ImagePattern("N9K-C93180YC")
	require.False(t, ok)
}

func TestCatalogNilIsUnsupported(t *testing.T) {
	var cat *ModelCatalog
	require.False(t, cat.Supported("C9300-48P"))
}
