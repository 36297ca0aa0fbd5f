package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObfuscateURL(t *testing.T) {
	require.Equal(t, "http://host.example.com/***?***",
		ObfuscateURL("http://host.example.com/live/token123/stream.m3u8?auth=secret"))
	require.Equal(t, "http://host.example.com", ObfuscateURL("http://host.example.com"))
	require.Equal(t, "http://host.example.com/***#***", ObfuscateURL("http://host.example.com/a#frag"))
	require.Equal(t, "", ObfuscateURL(""))
}

func TestLogURL(t *testing.T) {
	raw := "http://host/secret/path"
	require.Equal(t, raw, LogURL(false, raw))
	require.Equal(t, "http://host/***", LogURL(true, raw))
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "a_b_c.m3u", SanitizeFilename("a b/c.m3u"))
	require.Equal(t, "provider_list.m3u", SanitizeFilename("provider_list.m3u"))
	require.Equal(t, "x_y", SanitizeFilename("_x:::y_"))
}
