package schema

// Role is the semantic role of a slot.
type Role int

const (
	TokenEmbedding Role = iota
	PositionEmbedding
	InputEmbedding
	LN1Output
	Query
	Key
	Value
	AttnRaw
	AttnScaled
	AttnMasked
	AttnSoftmax
	AttnOutput
	Residual1
	LN2Output
	MLPLinear1
	MLPGELU
	MLPLinear2
	MLPOutput
	Residual2
	LNFOutput
	LinearOutput
)

var roleNames = [...]string{
	TokenEmbedding:    "tok_emb",
	PositionEmbedding: "pos_emb",
	InputEmbedding:    "input_emb",
	LN1Output:         "ln_1_output",
	Query:             "q",
	Key:               "k",
	Value:             "v",
	AttnRaw:           "attn",
	AttnScaled:        "attn_scaled",
	AttnMasked:        "attn_masked",
	AttnSoftmax:       "attn_softmax",
	AttnOutput:        "attn_output",
	Residual1:         "res_1",
	LN2Output:         "ln_2_output",
	MLPLinear1:        "linear_1_output",
	MLPGELU:           "gelu_output",
	MLPLinear2:        "linear_2_output",
	MLPOutput:         "output",
	Residual2:         "res_2",
	LNFOutput:         "ln_f_output",
	LinearOutput:      "linear_output",
}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return "unknown"
	}
	return roleNames[r]
}

// PerHead reports whether the role occurs once per attention head.
func (r Role) PerHead() bool {
	return r >= Query && r <= AttnSoftmax
}
