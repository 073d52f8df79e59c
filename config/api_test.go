package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertAuthSecret(t *testing.T) {
	for _, testCase := range []struct {
		input  string
		output string
	}{
		{"", ""},
		{"someToken", "Bearer someToken"},
		{"bearer:someToken", "Bearer someToken"},
		{"basic:admin:password", "Basic YWRtaW46cGFzc3dvcmQ="},
		{"basic:YWRtaW46cGFzc3dvcmQ=", "Basic YWRtaW46cGFzc3dvcmQ="},
		{"digest:whatever", ""},
	} {
		assert.Equal(t, testCase.output, ConvertAuthSecret(testCase.input))
	}
}
