package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/speedrun-hq/railsettle/pkg/models"
)

const upiMetadataSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["transactionId", "timestamp", "railSpecificData"],
  "properties": {
    "transactionId": {"type": "string", "minLength": 1},
    "timestamp": {"type": "string", "format": "date-time"},
    "railSpecificData": {
      "type": "object",
      "required": ["vpa"],
      "properties": {
        "vpa": {"type": "string", "pattern": "^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+$"},
        "utr": {"type": "string", "pattern": "^[0-9]{12}$"},
        "payerVpa": {"type": "string"}
      }
    }
  }
}`

const bitcoinMetadataSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["transactionId", "timestamp", "railSpecificData"],
  "properties": {
    "transactionId": {"type": "string", "minLength": 1},
    "timestamp": {"type": "string", "format": "date-time"},
    "railSpecificData": {
      "type": "object",
      "required": ["txid"],
      "properties": {
        "txid": {"type": "string", "pattern": "^[0-9a-fA-F]{64}$"},
        "vout": {"type": "integer", "minimum": 0},
        "confirmations": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

// metadataSchemas holds the compiled payment metadata schema of each rail
type metadataSchemas map[models.RailType]*jsonschema.Schema

func compileMetadataSchemas() (metadataSchemas, error) {
	sources := map[models.RailType]string{
		models.RailUPI:     upiMetadataSchema,
		models.RailBitcoin: bitcoinMetadataSchema,
	}
	schemas := make(metadataSchemas, len(sources))
	for rail, source := range sources {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		c.AssertFormat = true
		url := fmt.Sprintf("https://railsettle.schemas.local/payment-metadata/%s.schema.json", strings.ToLower(string(rail)))
		if err := c.AddResource(url, strings.NewReader(source)); err != nil {
			return nil, fmt.Errorf("payment metadata schema %s load failed: %w", rail, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("payment metadata schema %s compile failed: %w", rail, err)
		}
		schemas[rail] = compiled
	}
	return schemas, nil
}

// validate checks metadata against the schema of its rail
func (s metadataSchemas) validate(rail models.RailType, metadata *models.PaymentMetadata) error {
	schema, ok := s[rail]
	if !ok {
		return fmt.Errorf("no payment metadata schema for rail %s", rail)
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}
