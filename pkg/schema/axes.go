package schema

// AxisSpec is the shape-polymorphism declaration of a slot.
type AxisSpec int

const (
	// ThreeDynamic values vary along batch, sequence and feature axes.
	ThreeDynamic AxisSpec = iota
	// TwoDynamicPlusFeature values vary along batch and sequence, with the
	// feature axis declared separately. Only the final logits use it.
	TwoDynamicPlusFeature
)

// Axis names one dimension that may vary between inputs. Shared axes have
// the same extent in every value of one evaluation.
type Axis struct {
	Index  int
	Name   string
	Shared bool
}

func (a AxisSpec) String() string {
	switch a {
	case ThreeDynamic:
		return "3-dynamic-axes"
	case TwoDynamicPlusFeature:
		return "2-dynamic-plus-feature"
	default:
		return "unknown"
	}
}

// Dynamic lists the declared axes in index order.
func (a AxisSpec) Dynamic() []Axis {
	switch a {
	case TwoDynamicPlusFeature:
		return []Axis{{0, "batch", true}, {1, "sequence", true}, {2, "vocab", true}}
	default:
		return []Axis{{0, "batch", true}, {1, "sequence", true}, {2, "feature", false}}
	}
}
