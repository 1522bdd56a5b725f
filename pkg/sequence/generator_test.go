package sequence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatCode(t *testing.T) {
	require.Equal(t, "CMP-251015-001", formatCode("CMP", "251015", 1, ""))
	require.Equal(t, "PAY-251015-00ZAB", formatCode("PAY", "251015", 35, "AB"))
	require.Equal(t, "PAY-251015-1000", formatCode("PAY", "251015", 36*36*36, ""))
}

func TestStaticGeneratorIsMonotonic(t *testing.T) {
	g := NewStatic()
	a, err := g.NextCampaignCode(context.Background())
	require.NoError(t, err)
	b, err := g.NextPaymentCode(context.Background())
	require.NoError(t, err)

	require.Contains(t, a, "CMP-")
	require.Contains(t, b, "PAY-")
	require.NotEqual(t, a[len(a)-3:], b[len(b)-3:])
}

func TestRandomAlphaNumericLength(t *testing.T) {
	require.Len(t, randomAlphaNumeric(4), 4)
}
