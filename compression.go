package gotap

import (
	"github.com/couchbaselabs/gotap/tapx"
	"github.com/golang/snappy"
)

// maybeDecompressValue inflates a mutation value when the datatype
// marks it as compressed.  Some users require the ability to disable
// decompression, e.g. to re-store values still compressed.
func maybeDecompressValue(disabled bool, datatype uint8, value []byte) ([]byte, uint8, error) {
	if disabled {
		return value, datatype, nil
	}

	if (tapx.DatatypeFlag(datatype) & tapx.DatatypeFlagCompressed) == 0 {
		return value, datatype, nil
	}

	newValue, err := snappy.Decode(nil, value)
	if err != nil {
		return nil, 0, err
	}

	return newValue, datatype &^ uint8(tapx.DatatypeFlagCompressed), nil
}
