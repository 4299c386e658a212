//go:build integration

package npm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/integrations"
)

// Talks to registry.npmjs.org; run with -tags integration.
func TestRegistryMetadata(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	c := NewClient(nil, 0)

	for _, name := range []string{"left-pad", "@types/node"} {
		version := map[string]string{"left-pad": "1.3.0", "@types/node": "20.11.5"}[name]
		v, err := c.FetchVersion(ctx, name, version, true)
		require.NoError(t, err, name)
		assert.Equal(t, TarballURL(DefaultRegistry, name, version), v.Tarball)

		sums := v.Checksums()
		require.NotEmpty(t, sums, name)
		assert.Equal(t, checksum.SHA512, sums[0].Algorithm, "integrity comes first")
	}

	_, err := c.FetchVersion(ctx, "surely-unpublished-package-0x5f3759df", "1.0.0", true)
	assert.True(t, errors.Is(err, integrations.ErrNotFound), "got %v", err)
}
