package mapview

// Style is a Leaflet circle marker style.
type Style struct {
	Radius      int     `json:"radius"`
	Stroke      bool    `json:"stroke"`
	Weight      int     `json:"weight"`
	Color       string  `json:"color"`
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
}

var businessTypeColors = map[string]string{
	"restaurant":      "#e74c3c",
	"factory":         "#3498db",
	"bank":            "#f1c40f",
	"filling_station": "#9b59b6",
}

const defaultBusinessColor = "#34495e"

func baseStyle() Style {
	return Style{Radius: 8, Stroke: true, Weight: 1}
}

// PointStyle styles a collection point marker; inactive points are grey.
func PointStyle(active bool) Style {
	s := baseStyle()
	s.Color = "#27ae60"
	s.FillColor = "#95a5a6"
	if active {
		s.FillColor = "#2ecc71"
	}
	s.FillOpacity = 0.7
	return s
}

// SubscriberStyle colors a subscriber marker by business type and fades
// inactive ones.
func SubscriberStyle(businessType string, active bool) Style {
	s := baseStyle()
	s.Color = "#2c3e50"
	s.FillColor = defaultBusinessColor
	if c, ok := businessTypeColors[businessType]; ok {
		s.FillColor = c
	}
	s.FillOpacity = 0.3
	if active {
		s.FillOpacity = 0.7
	}
	return s
}
