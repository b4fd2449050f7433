package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testProductRequest struct {
	Category string  `json:"category" validate:"required,category"`
	Name     string  `json:"name" validate:"required,max=200"`
	Price    float64 `json:"price" validate:"gte=0"`
	Quantity int     `json:"quantity_available" validate:"gte=0"`
}

func decodeProduct(t *testing.T, body map[string]interface{}) (testProductRequest, error) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/admin/products", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	var product testProductRequest
	err = DecodeAndValidate(req, &product)
	return product, err
}

func TestProperty_RequiredFieldValidationWorks(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("missing required fields are rejected", prop.ForAll(
		func(includeCategory, includeName bool) bool {
			body := map[string]interface{}{"price": 10, "quantity_available": 1}
			if includeCategory {
				body["category"] = "part"
			}
			if includeName {
				body["name"] = "wiper"
			}

			_, err := decodeProduct(t, body)
			if includeCategory && includeName {
				return err == nil
			}
			return err != nil && IsValidationError(err)
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_CategoryValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("only part and service are accepted", prop.ForAll(
		func(category string) bool {
			_, err := decodeProduct(t, map[string]interface{}{"category": category, "name": "wiper"})
			if category == "part" || category == "service" {
				return err == nil
			}
			return err != nil
		},
		gen.OneConstOf("part", "service", "Part", "parts", "", "tyre", "labour"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_NegativeQuantitiesRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("stock and price below zero are rejected", prop.ForAll(
		func(quantity int, price float64) bool {
			_, err := decodeProduct(t, map[string]interface{}{
				"category":           "service",
				"name":               "alignment",
				"price":              price,
				"quantity_available": quantity,
			})
			if quantity >= 0 && price >= 0 {
				return err == nil
			}
			return err != nil
		},
		gen.IntRange(-100, 200),
		gen.Float64Range(-50, 50),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestValidationErrorsAreFormatted(t *testing.T) {
	_, err := decodeProduct(t, map[string]interface{}{"category": "tyre", "price": -1})
	require.Error(t, err)

	formatted := FormatValidationErrors(err)
	fields := make(map[string]string)
	for _, ve := range formatted {
		fields[ve.Field] = ve.Message
	}
	assert.Equal(t, "Category must be part or service", fields["Category"])
	assert.Equal(t, "This field is required", fields["Name"])
	assert.Contains(t, fields["Price"], "greater than or equal to 0")
}

func TestDecodeRejectsMalformedBodies(t *testing.T) {
	tests := map[string]string{
		"not json":      `{"category":`,
		"unknown field": `{"category":"part","name":"wiper","discount":50}`,
		"wrong type":    `{"category":"part","name":"wiper","price":"free"}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/admin/products", strings.NewReader(body))
			var product testProductRequest
			err := DecodeAndValidate(req, &product)
			require.Error(t, err)
			assert.False(t, IsValidationError(err))
			assert.Empty(t, FormatValidationErrors(err))
		})
	}
}
