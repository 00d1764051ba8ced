package fetch

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyforge/corpus/core"
)

// staticResolver resolves every hostname to a fixed set of addresses.
func staticResolver(addrs ...string) Resolver {
	return func(ctx context.Context, host string) ([]net.IPAddr, error) {
		ips := make([]net.IPAddr, len(addrs))
		for i, a := range addrs {
			ips[i] = net.IPAddr{IP: net.ParseIP(a)}
		}
		return ips, nil
	}
}

func TestValidateRejectsPlainHTTP(t *testing.T) {
	f := New(WithResolver(staticResolver("93.184.216.34")))

	_, err := f.Validate(context.Background(), "http://example.com/page")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindSecurity))
}

func TestValidateRejectsMetadataAddress(t *testing.T) {
	f := New()

	_, err := f.Validate(context.Background(), "https://169.254.169.254/latest/meta-data/")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindSecurity))
}

func TestValidateRejectsPrivateAddress(t *testing.T) {
	f := New()

	_, err := f.Validate(context.Background(), "https://10.0.0.1/internal")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindSecurity))
}

func TestValidateRejectsLoopback(t *testing.T) {
	f := New()

	_, err := f.Validate(context.Background(), "https://127.0.0.1/admin")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindSecurity))
}

func TestValidateAcceptsPublicHost(t *testing.T) {
	f := New(WithResolver(staticResolver("93.184.216.34")))

	parsed, err := f.Validate(context.Background(), "https://example.com/article")
	require.NoError(t, err)
	assert.Equal(t, "example.com", parsed.Hostname())
}

func TestValidateRejectsHostWithOnePrivateAddress(t *testing.T) {
	// All resolved addresses must pass; one private answer blocks the host.
	f := New(WithResolver(staticResolver("93.184.216.34", "192.168.1.5")))

	_, err := f.Validate(context.Background(), "https://split-horizon.example")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindSecurity))
}

func TestValidateRejectsIPv6UniqueLocal(t *testing.T) {
	f := New(WithResolver(staticResolver("fd00::1")))

	_, err := f.Validate(context.Background(), "https://internal.example")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindSecurity))
}

func TestValidateFailsClosedOnResolutionError(t *testing.T) {
	f := New(WithResolver(func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return nil, errors.New("NXDOMAIN")
	}))

	_, err := f.Validate(context.Background(), "https://does-not-exist.example")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindSecurity), "resolution failure must block, not pass through")
}

func TestValidateFailsClosedOnEmptyResolution(t *testing.T) {
	f := New(WithResolver(func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return nil, nil
	}))

	_, err := f.Validate(context.Background(), "https://empty.example")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindSecurity))
}

func TestIsDisallowedIP(t *testing.T) {
	blocked := []string{
		"127.0.0.1",
		"10.0.0.1",
		"172.16.0.1",
		"192.168.1.1",
		"169.254.169.254",
		"169.254.0.10",
		"100.64.0.1",
		"240.0.0.1",
		"0.0.0.0",
		"224.0.0.1",
		"::1",
		"fe80::1",
		"fd12:3456::1",
		"ff02::1",
	}
	for _, a := range blocked {
		assert.True(t, IsDisallowedIP(net.ParseIP(a)), "expected %s to be blocked", a)
	}

	allowed := []string{
		"93.184.216.34",
		"8.8.8.8",
		"2606:2800:220:1:248:1893:25c8:1946",
	}
	for _, a := range allowed {
		assert.False(t, IsDisallowedIP(net.ParseIP(a)), "expected %s to be allowed", a)
	}
}

func TestReadCapped(t *testing.T) {
	f := New(WithMaxBytes(16))

	body, err := f.readCapped(strings.NewReader("under the limit!"))
	require.NoError(t, err)
	assert.Equal(t, "under the limit!", string(body))

	_, err = f.readCapped(strings.NewReader("this is over the sixteen byte limit"))
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
}
