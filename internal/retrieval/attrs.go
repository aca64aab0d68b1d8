package retrieval

import "github.com/banshee-data/lidarwind/internal/dataset"

// Output variable names.
const (
	VarWindSpeed     = "horizontal_wind_speed"
	VarWindDirection = "horizontal_wind_direction"
	VarZonal         = "zonal_wind"
	VarMeridional    = "meridional_wind"
	VarVertical      = "vertical_wind_speed"
	VarRelativeBeta  = "lidar_relative_beta"
	VarPhase         = "phase"
	VarRadialSpeed   = "radial_wind_speed_amplitude"
)

// Stress tensor component names, in the order of the coefficient matrix
// columns.
var StressComponents = []string{"var_u", "var_v", "var_w", "var_uv", "var_uw", "var_vw"}

var variableAttrs = map[string]dataset.Attrs{
	VarWindSpeed: {
		"standard_name": "wind_speed",
		"units":         "m s-1",
		"comments":      "horizontal wind speed retrieved using the FFT method",
	},
	VarWindDirection: {
		"standard_name": "wind_from_direction",
		"units":         "degree",
		"comments":      "horizontal wind direction retrieved using the FFT method with respect to true north",
		"info":          "0=wind coming from the north, 90=east, 180=south, 270=west",
	},
	VarZonal: {
		"standard_name": "eastward_wind",
		"units":         "m s-1",
		"comments":      "zonal wind retrieved using the FFT method",
	},
	VarMeridional: {
		"standard_name": "northward_wind",
		"units":         "m s-1",
		"comments":      "meridional wind retrieved using the FFT method",
	},
	VarVertical: {
		"standard_name": "upward_air_velocity",
		"units":         "m s-1",
		"comments":      "observed vertical wind speed (negative towards the ground)",
	},
	VarRelativeBeta: {
		"standard_name": "volume_attenuated_backwards_scattering_function_in_air",
		"units":         "m-1 sr-1",
		"comments":      "attenuated relative backscatter coefficient from the vertical beam",
	},
	VarPhase: {
		"long_name": "retrieved phase",
		"units":     "degree",
	},
	VarRadialSpeed: {
		"long_name": "wind speed not corrected for the elevation",
		"units":     "m s-1",
	},
	"var_u":  {"long_name": "variance of the zonal wind", "units": "m2 s-2"},
	"var_v":  {"long_name": "variance of the meridional wind", "units": "m2 s-2"},
	"var_w":  {"long_name": "variance of the vertical wind", "units": "m2 s-2"},
	"var_uv": {"long_name": "covariance of zonal and meridional wind", "units": "m2 s-2"},
	"var_uw": {"long_name": "covariance of zonal and vertical wind", "units": "m2 s-2"},
	"var_vw": {"long_name": "covariance of meridional and vertical wind", "units": "m2 s-2"},
}

var coordAttrs = map[string]dataset.Attrs{
	"range": {
		"standard_name": "range",
		"units":         "m",
		"comments":      "distance between the instrument and the center of each range gate",
	},
	"time":   {"standard_name": "time", "comments": "time of the horizontal observations"},
	"time90": {"standard_name": "time", "comments": "time of the vertical observations"},
}

// AttrsFor returns a copy of the standard attributes of a variable or
// coordinate name.
func AttrsFor(name string) dataset.Attrs {
	if a, ok := variableAttrs[name]; ok {
		return a.Clone()
	}
	if a, ok := coordAttrs[name]; ok {
		return a.Clone()
	}
	return dataset.Attrs{}
}

// LoadAttributes overwrites the attributes of every known variable and
// coordinate of ds and sets the global title.
func LoadAttributes(ds *dataset.Dataset, title string) {
	for name, v := range ds.Vars {
		if a, ok := variableAttrs[name]; ok {
			v.Attrs = a.Clone()
		}
	}
	for name, c := range ds.Coords {
		if a, ok := coordAttrs[name]; ok {
			c.Attrs = a.Clone()
		}
	}
	ds.Attrs["Conventions"] = "CF-1.8"
	ds.Attrs["title"] = title
}
