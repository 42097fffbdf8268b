package xident

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name     string
		entry    string
		contains string
		excludes string
		wantErr  bool
	}{
		{
			name:     "单 IP",
			entry:    "203.0.113.9",
			contains: "203.0.113.9",
			excludes: "203.0.113.10",
		},
		{
			name:     "CIDR",
			entry:    "192.168.0.0/16",
			contains: "192.168.255.1",
			excludes: "192.169.0.1",
		},
		{
			name:     "显式范围",
			entry:    "10.0.0.1-10.0.0.100",
			contains: "10.0.0.50",
			excludes: "10.0.0.101",
		},
		{
			name:     "范围两端去空白",
			entry:    " 10.0.0.1 - 10.0.0.5 ",
			contains: "10.0.0.3",
			excludes: "10.0.0.6",
		},
		{
			name:     "IPv6 单地址",
			entry:    "2001:db8::1",
			contains: "2001:db8::1",
			excludes: "2001:db8::2",
		},
		{
			name:     "CIDR 自动取网络地址",
			entry:    "10.1.2.3/24",
			contains: "10.1.2.200",
			excludes: "10.1.3.1",
		},
		{name: "空条目", entry: "", wantErr: true},
		{name: "非 IP", entry: "not-an-ip", wantErr: true},
		{name: "倒序范围", entry: "10.0.0.100-10.0.0.1", wantErr: true},
		{name: "非法 CIDR", entry: "10.0.0.0/33", wantErr: true},
		{name: "IPv6 zone ID", entry: "fe80::1%eth0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := parseRange(tt.entry)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidRange)
				return
			}
			require.NoError(t, err)
			assert.True(t, r.Contains(netip.MustParseAddr(tt.contains)))
			assert.False(t, r.Contains(netip.MustParseAddr(tt.excludes)))
		})
	}
}

func TestBuildIPSet(t *testing.T) {
	set, err := buildIPSet([]string{"10.0.0.1", "192.168.0.0/24"})
	require.NoError(t, err)
	assert.True(t, set.Contains(netip.MustParseAddr("10.0.0.1")))
	assert.True(t, set.Contains(netip.MustParseAddr("192.168.0.42")))
	assert.False(t, set.Contains(netip.MustParseAddr("10.0.0.2")))

	// 任一条目非法即整体失败
	_, err = buildIPSet([]string{"10.0.0.1", "bogus"})
	assert.ErrorIs(t, err, ErrInvalidRange)

	// 空名单得到空集合
	set, err = buildIPSet(nil)
	require.NoError(t, err)
	assert.False(t, set.Contains(netip.MustParseAddr("10.0.0.1")))
}
