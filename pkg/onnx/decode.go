package onnx

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// Summary is the part of a ModelProto that describes a trace export.
type Summary struct {
	IRVersion    int64
	Producer     string
	Opset        int64
	Inputs       []ValueInfo
	Outputs      []ValueInfo
	Nodes        int
	Initializers map[string]InitializerInfo
	Metadata     map[string]string
}

type InitializerInfo struct {
	Dims     []int64
	DataType int32
	Raw      []byte
}

// ReadFile decodes the ONNX model at path.
func ReadFile(path string) (*Summary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	s, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", path, err)
	}
	return s, nil
}

// Decode parses a serialized ModelProto. Unknown fields are skipped.
func Decode(b []byte) (*Summary, error) {
	s := &Summary{
		Initializers: map[string]InitializerInfo{},
		Metadata:     map[string]string{},
	}
	err := walk(b, func(num protowire.Number, v field) error {
		switch num {
		case modelIRVersion:
			s.IRVersion = int64(v.varint)
		case modelProducerName:
			s.Producer = string(v.bytes)
		case modelGraph:
			return decodeGraph(v.bytes, s)
		case modelOpsetImport:
			return walk(v.bytes, func(num protowire.Number, v field) error {
				if num == opsetVersion {
					s.Opset = int64(v.varint)
				}
				return nil
			})
		case modelMetadataProps:
			var key, value string
			if err := walk(v.bytes, func(num protowire.Number, v field) error {
				switch num {
				case entryKey:
					key = string(v.bytes)
				case entryValue:
					value = string(v.bytes)
				}
				return nil
			}); err != nil {
				return err
			}
			s.Metadata[key] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func decodeGraph(b []byte, s *Summary) error {
	return walk(b, func(num protowire.Number, v field) error {
		switch num {
		case graphNode:
			s.Nodes++
		case graphInput:
			info, err := decodeValueInfo(v.bytes)
			if err != nil {
				return err
			}
			s.Inputs = append(s.Inputs, info)
		case graphOutput:
			info, err := decodeValueInfo(v.bytes)
			if err != nil {
				return err
			}
			s.Outputs = append(s.Outputs, info)
		case graphInitializer:
			var name string
			var info InitializerInfo
			if err := walk(v.bytes, func(num protowire.Number, v field) error {
				switch num {
				case tensorDims:
					info.Dims = append(info.Dims, int64(v.varint))
				case tensorDataType:
					info.DataType = int32(v.varint)
				case tensorName:
					name = string(v.bytes)
				case tensorRawData:
					info.Raw = v.bytes
				}
				return nil
			}); err != nil {
				return err
			}
			s.Initializers[name] = info
		}
		return nil
	})
}

func decodeValueInfo(b []byte) (ValueInfo, error) {
	var info ValueInfo
	err := walk(b, func(num protowire.Number, v field) error {
		switch num {
		case valueInfoName:
			info.Name = string(v.bytes)
		case valueInfoType:
			return walk(v.bytes, func(num protowire.Number, v field) error {
				if num != typeTensorType {
					return nil
				}
				return walk(v.bytes, func(num protowire.Number, v field) error {
					switch num {
					case tensorTypeElemType:
						info.ElemType = int32(v.varint)
					case tensorTypeShape:
						return walk(v.bytes, func(num protowire.Number, v field) error {
							if num != shapeDim {
								return nil
							}
							var d Dim
							if err := walk(v.bytes, func(num protowire.Number, v field) error {
								switch num {
								case dimValue:
									d.Value = int64(v.varint)
								case dimParam:
									d.Param = string(v.bytes)
								}
								return nil
							}); err != nil {
								return err
							}
							info.Dims = append(info.Dims, d)
							return nil
						})
					}
					return nil
				})
			})
		}
		return nil
	})
	return info, err
}

type field struct {
	varint uint64
	bytes  []byte
}

// walk calls fn for each varint or length-delimited field in b.
func walk(b []byte, fn func(num protowire.Number, v field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var v field
		switch typ {
		case protowire.VarintType:
			v.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			v.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if typ == protowire.VarintType || typ == protowire.BytesType {
			if err := fn(num, v); err != nil {
				return err
			}
		}
	}
	return nil
}
