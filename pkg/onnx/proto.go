package onnx

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from onnx.proto.
const (
	modelIRVersion       protowire.Number = 1
	modelProducerName    protowire.Number = 2
	modelProducerVersion protowire.Number = 3
	modelDocString       protowire.Number = 6
	modelGraph           protowire.Number = 7
	modelOpsetImport     protowire.Number = 8
	modelMetadataProps   protowire.Number = 14

	opsetDomain  protowire.Number = 1
	opsetVersion protowire.Number = 2

	entryKey   protowire.Number = 1
	entryValue protowire.Number = 2

	graphNode        protowire.Number = 1
	graphName        protowire.Number = 2
	graphInitializer protowire.Number = 5
	graphInput       protowire.Number = 11
	graphOutput      protowire.Number = 12

	nodeInput  protowire.Number = 1
	nodeOutput protowire.Number = 2
	nodeName   protowire.Number = 3
	nodeOpType protowire.Number = 4

	tensorDims     protowire.Number = 1
	tensorDataType protowire.Number = 2
	tensorName     protowire.Number = 8
	tensorRawData  protowire.Number = 9

	valueInfoName protowire.Number = 1
	valueInfoType protowire.Number = 2

	typeTensorType protowire.Number = 1

	tensorTypeElemType protowire.Number = 1
	tensorTypeShape    protowire.Number = 2

	shapeDim protowire.Number = 1

	dimValue protowire.Number = 1
	dimParam protowire.Number = 2
)

// Tensor element types.
const (
	Float   int32 = 1
	Int64   int32 = 7
	Float16 int32 = 10
)

const (
	IRVersion    = 7
	OpsetVersion = 13
)

// Dim is one dimension of a value: either a fixed size or a symbolic name.
type Dim struct {
	Value int64
	Param string
}

type ValueInfo struct {
	Name     string
	ElemType int32
	Dims     []Dim
}

type node struct {
	name   string
	opType string
	inputs []string
	output string
}

type initializer struct {
	name     string
	dims     []int
	dataType int32
	raw      []byte
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func encodeValueInfo(v ValueInfo) []byte {
	var shape []byte
	for _, d := range v.Dims {
		var dim []byte
		if d.Param != "" {
			dim = appendString(dim, dimParam, d.Param)
		} else {
			dim = appendVarint(dim, dimValue, uint64(d.Value))
		}
		shape = appendMessage(shape, shapeDim, dim)
	}

	var tensorType []byte
	tensorType = appendVarint(tensorType, tensorTypeElemType, uint64(v.ElemType))
	tensorType = appendMessage(tensorType, tensorTypeShape, shape)

	var typ []byte
	typ = appendMessage(typ, typeTensorType, tensorType)

	var b []byte
	b = appendString(b, valueInfoName, v.Name)
	return appendMessage(b, valueInfoType, typ)
}

func encodeNode(n node) []byte {
	var b []byte
	for _, in := range n.inputs {
		b = appendString(b, nodeInput, in)
	}
	b = appendString(b, nodeOutput, n.output)
	b = appendString(b, nodeName, n.name)
	return appendString(b, nodeOpType, n.opType)
}

func encodeInitializer(t initializer) []byte {
	var b []byte
	for _, d := range t.dims {
		b = appendVarint(b, tensorDims, uint64(d))
	}
	b = appendVarint(b, tensorDataType, uint64(t.dataType))
	b = appendString(b, tensorName, t.name)
	return appendMessage(b, tensorRawData, t.raw)
}

func encodeEntry(key, value string) []byte {
	var b []byte
	b = appendString(b, entryKey, key)
	return appendString(b, entryValue, value)
}

// rawData packs values little-endian as float32 or float16.
func rawData(values []float32, elemType int32) []byte {
	switch elemType {
	case Float16:
		out := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
		}
		return out
	default:
		out := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
		return out
	}
}

// DecodeRaw is the inverse of the raw payload encoding.
func DecodeRaw(raw []byte, elemType int32) []float32 {
	switch elemType {
	case Float16:
		out := make([]float32, len(raw)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
		}
		return out
	default:
		out := make([]float32, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		return out
	}
}
