package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "10.1000/XYZ123", expected: "10.1000/xyz123"},
		{name: "https resolver", input: "https://doi.org/10.1/ABC", expected: "10.1/abc"},
		{name: "dx resolver", input: "http://dx.doi.org/10.1/abc", expected: "10.1/abc"},
		{name: "doi scheme", input: "doi:10.1/abc", expected: "10.1/abc"},
		{name: "stacked prefixes", input: "doi: https://doi.org/10.1/abc", expected: "10.1/abc"},
		{name: "whitespace", input: "  10.1/abc  ", expected: "10.1/abc"},
		{name: "not a doi", input: "arXiv:2101.00001", expected: ""},
		{name: "empty", input: "", expected: ""},
		{name: "N/A placeholder", input: "N/A", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeDOI(tt.input))
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "case folded", input: "Deep Learning", expected: "deep learning"},
		{name: "punctuation dropped", input: "Deep learning: a review!", expected: "deep learning a review"},
		{name: "whitespace collapsed", input: "  deep\t\tlearning \n", expected: "deep learning"},
		{name: "diacritics kept", input: "Études sur la Mécanique", expected: "études sur la mécanique"},
		{name: "decomposed input composes", input: "Cafe\u0301", expected: "café"},
		{name: "hyphen splits words", input: "Self-Supervised", expected: "self supervised"},
		{name: "digits kept", input: "COVID-19 in 2020", expected: "covid 19 in 2020"},
		{name: "empty", input: "   ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTitle(tt.input))
		})
	}

	t.Run("accented and unaccented titles differ", func(t *testing.T) {
		assert.NotEqual(t, NormalizeTitle("Cáncer del año"), NormalizeTitle("Cancer del ano"))
	})

	t.Run("variants compare equal", func(t *testing.T) {
		assert.Equal(t,
			NormalizeTitle("Machine Learning in Healthcare."),
			NormalizeTitle("machine  learning in HEALTHCARE"),
		)
	})
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "A Study", CleanTitle(`"A Study"`))
	assert.Equal(t, "A Study", CleanTitle(`'A Study'`))
	assert.Equal(t, "Quantum dots in vivo", CleanTitle("Quantum <i>dots</i>  in\nvivo"))
	assert.Equal(t, `He said "hi" twice`, CleanTitle(`He said "hi" twice`))
}

func TestNormalizeYear(t *testing.T) {
	assert.Equal(t, 2021, NormalizeYear("2021"))
	assert.Equal(t, 1999, NormalizeYear("Published Dec 1999, online"))
	assert.Equal(t, 2019, NormalizeYear("2019-05-03"))
	assert.Equal(t, 0, NormalizeYear("n.d."))
	assert.Equal(t, 0, NormalizeYear("1776"))
	assert.Equal(t, 0, NormalizeYear(""))
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple lowercase", input: "John Smith", expected: "john smith"},
		{name: "extra whitespace", input: "  John   Smith  ", expected: "john smith"},
		{name: "last comma first format", input: "SMITH, John", expected: "john smith"},
		{name: "apostrophe removed", input: "O'Brien", expected: "obrien"},
		{name: "periods removed", input: "J. K. Rowling", expected: "j k rowling"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestCleanAuthors(t *testing.T) {
	got := CleanAuthors([]string{" Jane  Doe ", "", "Doe, Jane", "John Smith", "   "})
	assert.Equal(t, []string{"Jane Doe", "John Smith"}, got)

	assert.Nil(t, CleanAuthors(nil))
	assert.Nil(t, CleanAuthors([]string{" ", ""}))
}
