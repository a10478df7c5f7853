package schematic

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSynth/pkg/kicad/sexp/kicadsexp"
)

// Minimum supported KiCad version for schematics (6.0 = 20211014)
const MinSupportedVersion = 20211014

// ParseFile reads and parses a KiCad schematic file
func ParseFile(filename string) (*Schematic, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("schematic: open: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads a KiCad schematic from an io.Reader
func Parse(r io.Reader) (*Schematic, error) {
	root, err := parseRoot(r, "kicad_sch")
	if err != nil {
		return nil, err
	}

	sch := &Schematic{}
	if err := parseHeader(root, sch); err != nil {
		return nil, fmt.Errorf("schematic: header: %w", err)
	}

	if uuidNode, found := sexp.FindNode(root, "uuid"); found {
		sch.UUID, _ = sexp.GetUUID(uuidNode)
	}
	if paperNode, found := sexp.FindNode(root, "paper"); found {
		sch.Paper, _ = sexp.GetQuotedString(paperNode, 1)
	}
	if tb, found := sexp.FindNode(root, "title_block"); found {
		if titleNode, found := sexp.FindNode(tb, "title"); found {
			sch.Title, _ = sexp.GetQuotedString(titleNode, 1)
		}
	}

	if libSymbolsNode, found := sexp.FindNode(root, "lib_symbols"); found {
		sch.LibSymbols = parseLibSymbols(libSymbolsNode)
	}

	sch.Symbols = parseSymbols(root)
	sch.Wires = parseWires(root)
	sch.NoConnects = parseNoConnects(root)
	sch.Labels = parseLabels(root, "label")
	sch.GlobalLabels = parseLabels(root, "global_label")
	sch.HierLabels = parseLabels(root, "hierarchical_label")
	sch.Sheets = parseSheets(root)

	if instancesNode, found := sexp.FindNode(root, "sheet_instances"); found {
		sch.SheetInstances = parseSheetInstances(instancesNode)
	}
	// KiCad 6 keeps symbol references in one root block
	if instancesNode, found := sexp.FindNode(root, "symbol_instances"); found {
		applySymbolInstances(sch, instancesNode)
	}

	return sch, nil
}

// ParseLibrary reads the symbols of a symbol library (.kicad_sym).
// Symbol names are prefixed with "<lib>:" when lib is not empty.
func ParseLibrary(r io.Reader, lib string) ([]LibSymbol, error) {
	root, err := parseRoot(r, "kicad_symbol_lib")
	if err != nil {
		return nil, err
	}
	symbols := parseLibSymbols(root)
	if lib != "" {
		for i := range symbols {
			symbols[i].Name = lib + ":" + symbols[i].Name
		}
	}
	return symbols, nil
}

func parseRoot(r io.Reader, want string) (kicadsexp.Sexp, error) {
	sexps, err := kicadsexp.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("schematic: parse s-expression: %w", err)
	}
	if len(sexps) == 0 {
		return nil, fmt.Errorf("schematic: empty file or no valid s-expressions found")
	}

	root := sexps[0]
	rootName, err := sexp.GetNodeName(root)
	if err != nil {
		return nil, fmt.Errorf("schematic: root node: %w", err)
	}
	if rootName != want {
		return nil, fmt.Errorf("schematic: expected '%s', got '%s'", want, rootName)
	}
	return root, nil
}

// parseHeader extracts version and generator information
func parseHeader(root kicadsexp.Sexp, sch *Schematic) error {
	versionNode, found := sexp.FindNode(root, "version")
	if !found {
		return fmt.Errorf("missing required 'version' field")
	}

	ver, err := sexp.GetInt(versionNode, 1)
	if err != nil {
		return fmt.Errorf("failed to parse version: %w", err)
	}
	if ver < MinSupportedVersion {
		return fmt.Errorf("unsupported KiCad version: %d (minimum required: %d / KiCad 6.0)", ver, MinSupportedVersion)
	}
	sch.Version = ver

	if genNode, found := sexp.FindNode(root, "generator"); found {
		sch.Generator, _ = sexp.GetQuotedString(genNode, 1)
	}
	if genVerNode, found := sexp.FindNode(root, "generator_version"); found {
		sch.GeneratorVer, _ = sexp.GetQuotedString(genVerNode, 1)
	}

	return nil
}

// parseLibSymbols parses embedded library symbols
func parseLibSymbols(node kicadsexp.Sexp) []LibSymbol {
	symbolNodes := sexp.FindAllNodes(node, "symbol")
	symbols := make([]LibSymbol, 0, len(symbolNodes))

	for _, symNode := range symbolNodes {
		symbols = append(symbols, parseLibSymbol(symNode))
	}

	return symbols
}

// parseLibSymbol parses a single library symbol definition
func parseLibSymbol(node kicadsexp.Sexp) LibSymbol {
	sym := LibSymbol{
		InBom:   true,
		OnBoard: true,
	}

	sym.Name, _ = sexp.GetQuotedString(node, 1)

	for _, pn := range sexp.FindAllNodes(node, "property") {
		if prop, err := sexp.GetProperty(pn); err == nil {
			sym.Properties = append(sym.Properties, prop)
		}
	}

	if ibNode, found := sexp.FindNode(node, "in_bom"); found {
		val, _ := sexp.GetString(ibNode, 1)
		sym.InBom = val == "yes"
	}
	if obNode, found := sexp.FindNode(node, "on_board"); found {
		val, _ := sexp.GetString(obNode, 1)
		sym.OnBoard = val == "yes"
	}

	// pins may sit directly on the symbol or inside its unit sub-symbols
	for _, pn := range sexp.FindAllNodes(node, "pin") {
		sym.Pins = append(sym.Pins, parsePin(pn))
	}
	for _, unitNode := range sexp.FindAllNodes(node, "symbol") {
		for _, pn := range sexp.FindAllNodes(unitNode, "pin") {
			sym.Pins = append(sym.Pins, parsePin(pn))
		}
		for _, rn := range sexp.FindAllNodes(unitNode, "rectangle") {
			sym.Body = append(sym.Body, parseRectangle(rn))
		}
	}

	return sym
}

func parseRectangle(node kicadsexp.Sexp) Rectangle {
	rect := Rectangle{}
	if startNode, found := sexp.FindNode(node, "start"); found {
		rect.Start, _ = sexp.GetPositionXY(startNode)
	}
	if endNode, found := sexp.FindNode(node, "end"); found {
		rect.End, _ = sexp.GetPositionXY(endNode)
	}
	return rect
}

// parsePin parses a pin definition
func parsePin(node kicadsexp.Sexp) Pin {
	pin := Pin{}

	pin.Type, _ = sexp.GetString(node, 1)
	pin.Style, _ = sexp.GetString(node, 2)

	if atNode, found := sexp.FindNode(node, "at"); found {
		pos, _ := sexp.GetPosition(atNode)
		pin.Position = pos.Position
		pin.Angle = pos.Angle
	}
	if lenNode, found := sexp.FindNode(node, "length"); found {
		pin.Length, _ = sexp.GetFloat(lenNode, 1)
	}
	if nameNode, found := sexp.FindNode(node, "name"); found {
		pin.Name, _ = sexp.GetQuotedString(nameNode, 1)
	}
	if numNode, found := sexp.FindNode(node, "number"); found {
		pin.Number, _ = sexp.GetQuotedString(numNode, 1)
	}

	pin.Hide = sexp.HasSymbol(node, "hide")
	if hideNode, found := sexp.FindNode(node, "hide"); found {
		v, _ := sexp.GetString(hideNode, 1)
		pin.Hide = v == "yes"
	}

	return pin
}

// parseSymbols parses symbol instances
func parseSymbols(root kicadsexp.Sexp) []Symbol {
	symbolNodes := sexp.FindAllNodes(root, "symbol")
	symbols := make([]Symbol, 0, len(symbolNodes))

	for _, symNode := range symbolNodes {
		symbols = append(symbols, parseSymbol(symNode))
	}

	return symbols
}

// parseSymbol parses a single symbol instance
func parseSymbol(node kicadsexp.Sexp) Symbol {
	sym := Symbol{
		InBom:   true,
		OnBoard: true,
		Unit:    1,
	}

	if libNode, found := sexp.FindNode(node, "lib_id"); found {
		sym.LibID, _ = sexp.GetQuotedString(libNode, 1)
	}
	if atNode, found := sexp.FindNode(node, "at"); found {
		pos, _ := sexp.GetPosition(atNode)
		sym.Position = pos.Position
		sym.Angle = pos.Angle
	}
	if mirrorNode, found := sexp.FindNode(node, "mirror"); found {
		sym.Mirror, _ = sexp.GetString(mirrorNode, 1)
	}
	if unitNode, found := sexp.FindNode(node, "unit"); found {
		sym.Unit, _ = sexp.GetInt(unitNode, 1)
	}
	if ibNode, found := sexp.FindNode(node, "in_bom"); found {
		val, _ := sexp.GetString(ibNode, 1)
		sym.InBom = val == "yes"
	}
	if obNode, found := sexp.FindNode(node, "on_board"); found {
		val, _ := sexp.GetString(obNode, 1)
		sym.OnBoard = val == "yes"
	}
	if uuidNode, found := sexp.FindNode(node, "uuid"); found {
		sym.UUID, _ = sexp.GetUUID(uuidNode)
	}

	for _, pn := range sexp.FindAllNodes(node, "property") {
		if prop, err := sexp.GetProperty(pn); err == nil {
			sym.Properties = append(sym.Properties, prop)
		}
	}

	for _, pn := range sexp.FindAllNodes(node, "pin") {
		ref := PinRef{}
		ref.Number, _ = sexp.GetQuotedString(pn, 1)
		if uuidNode, found := sexp.FindNode(pn, "uuid"); found {
			ref.UUID, _ = sexp.GetUUID(uuidNode)
		}
		sym.Pins = append(sym.Pins, ref)
	}

	// (instances (project "name" (path "/..." (reference "R1") (unit 1))))
	if instancesNode, found := sexp.FindNode(node, "instances"); found {
		for _, project := range sexp.FindAllNodes(instancesNode, "project") {
			for _, pn := range sexp.FindAllNodes(project, "path") {
				sym.Instances = append(sym.Instances, parseSymbolInstance(pn))
			}
		}
	}

	return sym
}

func parseSymbolInstance(node kicadsexp.Sexp) SymbolInstance {
	inst := SymbolInstance{Unit: 1}
	inst.Path, _ = sexp.GetQuotedString(node, 1)
	if refNode, found := sexp.FindNode(node, "reference"); found {
		inst.Reference, _ = sexp.GetQuotedString(refNode, 1)
	}
	if unitNode, found := sexp.FindNode(node, "unit"); found {
		inst.Unit, _ = sexp.GetInt(unitNode, 1)
	}
	return inst
}

// applySymbolInstances attaches the entries of a root symbol_instances
// block to the symbols whose UUID ends their path. The symbol UUID is
// removed from the stored path.
func applySymbolInstances(sch *Schematic, node kicadsexp.Sexp) {
	for _, pn := range sexp.FindAllNodes(node, "path") {
		inst := parseSymbolInstance(pn)
		cut := strings.LastIndex(inst.Path, "/")
		id := inst.Path[cut+1:]
		inst.Path = inst.Path[:cut]
		if inst.Path == "" {
			inst.Path = "/"
		}
		for i := range sch.Symbols {
			if string(sch.Symbols[i].UUID) == id {
				sch.Symbols[i].Instances = append(sch.Symbols[i].Instances, inst)
			}
		}
	}
}

// parseWires parses wire segments
func parseWires(root kicadsexp.Sexp) []Wire {
	wireNodes := sexp.FindAllNodes(root, "wire")
	wires := make([]Wire, 0, len(wireNodes))

	for _, wn := range wireNodes {
		wire := Wire{}
		if ptsNode, found := sexp.FindNode(wn, "pts"); found {
			xy := sexp.FindAllNodes(ptsNode, "xy")
			if len(xy) == 2 {
				wire.Start, _ = sexp.GetPositionXY(xy[0])
				wire.End, _ = sexp.GetPositionXY(xy[1])
			}
		}
		if uuidNode, found := sexp.FindNode(wn, "uuid"); found {
			wire.UUID, _ = sexp.GetUUID(uuidNode)
		}
		wires = append(wires, wire)
	}

	return wires
}

// parseNoConnects parses no-connect markers
func parseNoConnects(root kicadsexp.Sexp) []NoConnect {
	ncNodes := sexp.FindAllNodes(root, "no_connect")
	ncs := make([]NoConnect, 0, len(ncNodes))

	for _, ncn := range ncNodes {
		nc := NoConnect{}
		if atNode, found := sexp.FindNode(ncn, "at"); found {
			pos, _ := sexp.GetPosition(atNode)
			nc.Position = pos.Position
		}
		if uuidNode, found := sexp.FindNode(ncn, "uuid"); found {
			nc.UUID, _ = sexp.GetUUID(uuidNode)
		}
		ncs = append(ncs, nc)
	}

	return ncs
}

// parseLabels parses label, global_label or hierarchical_label nodes
func parseLabels(root kicadsexp.Sexp, kind string) []Label {
	labelNodes := sexp.FindAllNodes(root, kind)
	labels := make([]Label, 0, len(labelNodes))

	for _, ln := range labelNodes {
		label := Label{}
		label.Text, _ = sexp.GetQuotedString(ln, 1)

		if shapeNode, found := sexp.FindNode(ln, "shape"); found {
			label.Shape, _ = sexp.GetString(shapeNode, 1)
		}
		if atNode, found := sexp.FindNode(ln, "at"); found {
			pos, _ := sexp.GetPosition(atNode)
			label.Position = pos.Position
			label.Angle = pos.Angle
		}
		if effectsNode, found := sexp.FindNode(ln, "effects"); found {
			label.Effects, _ = sexp.GetEffects(effectsNode)
		}
		if uuidNode, found := sexp.FindNode(ln, "uuid"); found {
			label.UUID, _ = sexp.GetUUID(uuidNode)
		}

		labels = append(labels, label)
	}

	return labels
}

// parseSheets parses hierarchical sheet references
func parseSheets(root kicadsexp.Sexp) []Sheet {
	sheetNodes := sexp.FindAllNodes(root, "sheet")
	sheets := make([]Sheet, 0, len(sheetNodes))

	for _, sn := range sheetNodes {
		sheet := Sheet{}

		if atNode, found := sexp.FindNode(sn, "at"); found {
			pos, _ := sexp.GetPosition(atNode)
			sheet.Position = pos.Position
		}
		if sizeNode, found := sexp.FindNode(sn, "size"); found {
			w, _ := sexp.GetFloat(sizeNode, 1)
			h, _ := sexp.GetFloat(sizeNode, 2)
			sheet.Size = Size{Width: w, Height: h}
		}
		if uuidNode, found := sexp.FindNode(sn, "uuid"); found {
			sheet.UUID, _ = sexp.GetUUID(uuidNode)
		}

		for _, pn := range sexp.FindAllNodes(sn, "property") {
			prop, err := sexp.GetProperty(pn)
			if err != nil {
				continue
			}
			switch prop.Key {
			case "Sheetname", "Sheet name":
				sheet.Name = prop.Value
			case "Sheetfile", "Sheet file":
				sheet.FileName = prop.Value
			default:
				sheet.Properties = append(sheet.Properties, prop)
			}
		}

		for _, pn := range sexp.FindAllNodes(sn, "pin") {
			pin := SheetPin{}
			pin.Name, _ = sexp.GetQuotedString(pn, 1)
			pin.Shape, _ = sexp.GetString(pn, 2)
			if atNode, found := sexp.FindNode(pn, "at"); found {
				pos, _ := sexp.GetPosition(atNode)
				pin.Position = pos.Position
				pin.Angle = pos.Angle
			}
			if uuidNode, found := sexp.FindNode(pn, "uuid"); found {
				pin.UUID, _ = sexp.GetUUID(uuidNode)
			}
			sheet.Pins = append(sheet.Pins, pin)
		}

		if instancesNode, found := sexp.FindNode(sn, "instances"); found {
			for _, project := range sexp.FindAllNodes(instancesNode, "project") {
				sheet.Instances = append(sheet.Instances, parseSheetInstances(project)...)
			}
		}

		sheets = append(sheets, sheet)
	}

	return sheets
}

// parseSheetInstances parses sheet instance paths
func parseSheetInstances(node kicadsexp.Sexp) []SheetInstance {
	pathNodes := sexp.FindAllNodes(node, "path")
	instances := make([]SheetInstance, 0, len(pathNodes))

	for _, pn := range pathNodes {
		inst := SheetInstance{}
		inst.Path, _ = sexp.GetQuotedString(pn, 1)
		if pageNode, found := sexp.FindNode(pn, "page"); found {
			inst.Page, _ = sexp.GetQuotedString(pageNode, 1)
		}
		instances = append(instances, inst)
	}

	return instances
}
