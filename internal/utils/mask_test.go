package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+1 (555) 123-4567", "****4567"},
		{"5551234567", "****4567"},
		{"123", "****123"},
		{"no digits here", ""},
		{"", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, MaskPhone(tc.in), "input %q", tc.in)
	}
}

func TestMaskPhoneNeverLeaksPrefix(t *testing.T) {
	masked := MaskPhone("+49 170 1234567")
	assert.Equal(t, "****4567", masked)
	assert.NotContains(t, masked, "170")
}

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"john.doe@example.com", "j****@e****.com"},
		{"ab@cd.org", "a*@c*.org"},
		{"a@b.co.uk", "a*@b*.co.uk"},
		{"verylonglocalpart@subdomain.example.com", "v****@s****.example.com"},
		{"no-at-sign", "no-at-sign"},
		{"", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, MaskEmail(tc.in), "input %q", tc.in)
	}
}

func TestMaskEmailNeverLeaksFullParts(t *testing.T) {
	masked := MaskEmail("charliebrown@peanuts.example.org")
	assert.NotContains(t, masked, "charliebrown")
	assert.NotContains(t, masked, "peanuts")
	assert.Contains(t, masked, ".example.org")
}
