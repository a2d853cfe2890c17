package core

import "errors"

// ErrUnknownName is returned when a config enum name is not recognised.
var ErrUnknownName = errors.New("unknown name")

// Text forms of the config enums so config files can say
// "spark_mode: sequential" instead of a bare number.

var (
	strokesNames     = []string{"four-stroke", "two-stroke"}
	engineTypeNames  = []string{"even-fire", "odd-fire"}
	injLayoutNames   = []string{"paired", "semi-sequential", "sequential"}
	injPairingNames  = []string{"13-24", "14-23"}
	sparkModeNames   = []string{"wasted", "single", "wasted-cop", "sequential", "rotary"}
	protectCutNames  = []string{"off", "ignition", "fuel", "both"}
	hardCutNames     = []string{"full", "rolling"}
	hardRevModeNames = []string{"fixed", "coolant"}
	afrModeNames     = []string{"off", "fixed", "target"}
	egoTypeNames     = []string{"none", "narrowband", "wideband"}
)

func enumName(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return "unknown(" + utoa(uint32(v)) + ")"
}

func parseEnum(names []string, text []byte) (uint8, error) {
	s := string(text)
	for i, name := range names {
		if name == s {
			return uint8(i), nil
		}
	}
	return 0, &UnknownNameError{Name: s}
}

// UnknownNameError carries the rejected name; it matches ErrUnknownName.
type UnknownNameError struct {
	Name string
}

func (e *UnknownNameError) Error() string {
	return "unknown name " + e.Name
}

func (e *UnknownNameError) Unwrap() error {
	return ErrUnknownName
}

func (v Strokes) String() string         { return enumName(strokesNames, uint8(v)) }
func (v EngineType) String() string      { return enumName(engineTypeNames, uint8(v)) }
func (v InjectionLayout) String() string { return enumName(injLayoutNames, uint8(v)) }
func (v InjPairing) String() string      { return enumName(injPairingNames, uint8(v)) }
func (v SparkMode) String() string       { return enumName(sparkModeNames, uint8(v)) }
func (v ProtectCutType) String() string  { return enumName(protectCutNames, uint8(v)) }
func (v HardCutType) String() string     { return enumName(hardCutNames, uint8(v)) }
func (v HardRevMode) String() string     { return enumName(hardRevModeNames, uint8(v)) }
func (v AFRProtectMode) String() string  { return enumName(afrModeNames, uint8(v)) }
func (v EGOType) String() string         { return enumName(egoTypeNames, uint8(v)) }

func (v Strokes) MarshalText() ([]byte, error)         { return []byte(v.String()), nil }
func (v EngineType) MarshalText() ([]byte, error)      { return []byte(v.String()), nil }
func (v InjectionLayout) MarshalText() ([]byte, error) { return []byte(v.String()), nil }
func (v InjPairing) MarshalText() ([]byte, error)      { return []byte(v.String()), nil }
func (v SparkMode) MarshalText() ([]byte, error)       { return []byte(v.String()), nil }
func (v ProtectCutType) MarshalText() ([]byte, error)  { return []byte(v.String()), nil }
func (v HardCutType) MarshalText() ([]byte, error)     { return []byte(v.String()), nil }
func (v HardRevMode) MarshalText() ([]byte, error)     { return []byte(v.String()), nil }
func (v AFRProtectMode) MarshalText() ([]byte, error)  { return []byte(v.String()), nil }
func (v EGOType) MarshalText() ([]byte, error)         { return []byte(v.String()), nil }

func (v *Strokes) UnmarshalText(text []byte) error {
	n, err := parseEnum(strokesNames, text)
	*v = Strokes(n)
	return err
}

func (v *EngineType) UnmarshalText(text []byte) error {
	n, err := parseEnum(engineTypeNames, text)
	*v = EngineType(n)
	return err
}

func (v *InjectionLayout) UnmarshalText(text []byte) error {
	n, err := parseEnum(injLayoutNames, text)
	*v = InjectionLayout(n)
	return err
}

func (v *InjPairing) UnmarshalText(text []byte) error {
	n, err := parseEnum(injPairingNames, text)
	*v = InjPairing(n)
	return err
}

func (v *SparkMode) UnmarshalText(text []byte) error {
	n, err := parseEnum(sparkModeNames, text)
	*v = SparkMode(n)
	return err
}

func (v *ProtectCutType) UnmarshalText(text []byte) error {
	n, err := parseEnum(protectCutNames, text)
	*v = ProtectCutType(n)
	return err
}

func (v *HardCutType) UnmarshalText(text []byte) error {
	n, err := parseEnum(hardCutNames, text)
	*v = HardCutType(n)
	return err
}

func (v *HardRevMode) UnmarshalText(text []byte) error {
	n, err := parseEnum(hardRevModeNames, text)
	*v = HardRevMode(n)
	return err
}

func (v *AFRProtectMode) UnmarshalText(text []byte) error {
	n, err := parseEnum(afrModeNames, text)
	*v = AFRProtectMode(n)
	return err
}

func (v *EGOType) UnmarshalText(text []byte) error {
	n, err := parseEnum(egoTypeNames, text)
	*v = EGOType(n)
	return err
}
