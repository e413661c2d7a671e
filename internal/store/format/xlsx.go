package format

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// XLSXFormat is a minimal hand-written OOXML (Office Open XML)
// spreadsheet writer/reader. No `excelize`/`xlsx` library appears
// anywhere in the retrieved corpus (see DESIGN.md), so this is a
// deliberately small stdlib-only implementation covering exactly the
// single-sheet subset this format needs, with every cell (numbers
// included) written as a string cell — not a general-purpose spreadsheet
// library.
type XLSXFormat struct{}

func (XLSXFormat) Name() string { return "xlsx" }
func (XLSXFormat) Ext() string  { return "xlsx" }

const xlsxTimeLayout = time.RFC3339Nano

func (XLSXFormat) Write(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("format/xlsx: mkdir: %w", err)
	}

	n := t.SampleCount()
	header := append([]string{"timestamp", "product", "point_forecast", "generation_timestamp", "is_fallback"}, sampleColumnNames(n)...)
	header = append(header, "ensemble_generation_timestamp", "ensemble_is_fallback", "schema_version")

	rows := make([][]string, 0, len(t.Timestamp)+1)
	rows = append(rows, header)
	for i := range t.Timestamp {
		row := []string{
			t.Timestamp[i].Format(xlsxTimeLayout),
			t.Product[i],
			strconv.FormatFloat(t.PointForecast[i], 'g', -1, 64),
			t.GenerationTimestamp[i].Format(xlsxTimeLayout),
			strconv.FormatBool(t.IsFallback[i]),
		}
		for _, s := range t.Samples[i] {
			row = append(row, strconv.FormatFloat(s, 'g', -1, 64))
		}
		row = append(row,
			t.EnsembleGenerationTimestamp.Format(xlsxTimeLayout),
			strconv.FormatBool(t.EnsembleIsFallback),
			t.SchemaVersion,
		)
		rows = append(rows, row)
	}

	tmp := path + ".tmp"
	if err := writeXLSX(tmp, rows); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (XLSXFormat) Read(path string) (*Table, error) {
	rows, err := readXLSX(path)
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("format/xlsx: empty sheet")
	}
	header := rows[0]
	sampleCount := len(header) - 8

	t := &Table{}
	for _, rec := range rows[1:] {
		if len(rec) < len(header) {
			continue
		}
		ts, err := time.Parse(xlsxTimeLayout, rec[0])
		if err != nil {
			return nil, fmt.Errorf("format/xlsx: parse timestamp: %w", err)
		}
		point, _ := strconv.ParseFloat(rec[2], 64)
		genTS, err := time.Parse(xlsxTimeLayout, rec[3])
		if err != nil {
			return nil, fmt.Errorf("format/xlsx: parse generation_timestamp: %w", err)
		}
		isFallback, _ := strconv.ParseBool(rec[4])
		samples := make([]float64, sampleCount)
		for i := 0; i < sampleCount; i++ {
			samples[i], _ = strconv.ParseFloat(rec[5+i], 64)
		}
		ensGenTS, _ := time.Parse(xlsxTimeLayout, rec[5+sampleCount])
		ensIsFallback, _ := strconv.ParseBool(rec[6+sampleCount])

		t.Timestamp = append(t.Timestamp, ts)
		t.Product = append(t.Product, rec[1])
		t.PointForecast = append(t.PointForecast, point)
		t.GenerationTimestamp = append(t.GenerationTimestamp, genTS)
		t.IsFallback = append(t.IsFallback, isFallback)
		t.Samples = append(t.Samples, samples)
		t.EnsembleGenerationTimestamp = ensGenTS
		t.EnsembleIsFallback = ensIsFallback
		t.SchemaVersion = rec[7+sampleCount]
	}
	return t, nil
}

// --- minimal OOXML plumbing ---

type xlsxRow struct {
	XMLName xml.Name  `xml:"row"`
	Cells   []xlsxCell `xml:"c"`
}

type xlsxCell struct {
	XMLName xml.Name `xml:"c"`
	Type    string   `xml:"t,attr"`
	Value   string   `xml:"v"`
}

type xlsxSheetData struct {
	XMLName xml.Name  `xml:"sheetData"`
	Rows    []xlsxRow `xml:"row"`
}

type xlsxWorksheet struct {
	XMLName   xml.Name      `xml:"worksheet"`
	Xmlns     string        `xml:"xmlns,attr"`
	SheetData xlsxSheetData `xml:"sheetData"`
}

func writeXLSX(path string, rows [][]string) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("format/xlsx: create: %w", err)
	}
	defer fh.Close()

	zw := zip.NewWriter(fh)

	sheet := xlsxWorksheet{Xmlns: "http://schemas.openxmlformats.org/spreadsheetml/2006/main"}
	for _, row := range rows {
		var xr xlsxRow
		for _, v := range row {
			xr.Cells = append(xr.Cells, xlsxCell{Type: "str", Value: v})
		}
		sheet.SheetData.Rows = append(sheet.SheetData.Rows, xr)
	}
	sheetXML, err := xml.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("format/xlsx: marshal sheet: %w", err)
	}

	files := map[string]string{
		"[Content_Types].xml": contentTypesXML,
		"_rels/.rels":         relsXML,
		"xl/workbook.xml":     workbookXML,
		"xl/_rels/workbook.xml.rels": workbookRelsXML,
		"xl/worksheets/sheet1.xml":   xml.Header + string(sheetXML),
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("format/xlsx: zip entry %s: %w", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			return fmt.Errorf("format/xlsx: write %s: %w", name, err)
		}
	}
	return zw.Close()
}

func readXLSX(path string) ([][]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("format/xlsx: open: %w", err)
	}
	defer zr.Close()

	var sheetFile *zip.File
	for _, f := range zr.File {
		if f.Name == "xl/worksheets/sheet1.xml" {
			sheetFile = f
			break
		}
	}
	if sheetFile == nil {
		return nil, fmt.Errorf("format/xlsx: missing sheet1.xml")
	}

	rc, err := sheetFile.Open()
	if err != nil {
		return nil, fmt.Errorf("format/xlsx: open sheet1.xml: %w", err)
	}
	defer rc.Close()

	var sheet xlsxWorksheet
	if err := xml.NewDecoder(rc).Decode(&sheet); err != nil {
		return nil, fmt.Errorf("format/xlsx: decode sheet: %w", err)
	}

	out := make([][]string, len(sheet.SheetData.Rows))
	for i, row := range sheet.SheetData.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.Value
		}
		out[i] = cells
	}
	return out, nil
}

const contentTypesXML = xml.Header + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>
<Override PartName="/xl/worksheets/sheet1.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>
</Types>`

const relsXML = xml.Header + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/>
</Relationships>`

const workbookXML = xml.Header + `<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="forecast" sheetId="1" r:id="rId1"/></sheets>
</workbook>`

const workbookRelsXML = xml.Header + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>
</Relationships>`

func init() {
	Register(XLSXFormat{})
}
