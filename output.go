/*
Copyright © 2019 the ETMap authors.
This file is part of ETMap.

ETMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ETMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ETMap.  If not, see <http://www.gnu.org/licenses/>.
*/

package etmap

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/cdf"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/sparse"
	goshp "github.com/jonas-p/go-shp"
	"github.com/tealeg/xlsx"
	"gonum.org/v1/gonum/floats"
)

// An Outputter holds the configuration for writing aggregated
// results to a shapefile.
//
// outputVariables maps the names of the variables for which data
// should be written to expressions that define how the requested
// data should be calculated. The expressions can use the built-in
// grid variables "PET" and "Days", other user-defined variables,
// and the functions in outputFunctions. Each expression is
// evaluated independently for every grid cell.
//
// modelVariables is automatically generated based on the grid
// variables that are required to calculate the requested output
// variables.
type Outputter struct {
	fileName        string
	outputVariables map[string]string
	modelVariables  []string
	outputFunctions map[string]govaluate.ExpressionFunction
}

// NewOutputter initializes a new Outputter and adds a set of default
// output functions. Default functions include:
//
// 'exp(x)' which applies the exponential function e^x.
//
// 'log(x)' which applies the natural logarithm.
//
// 'sqrt(x)' which applies the square root.
//
// 'abs(x)' which applies the absolute value.
//
// 'min(x, y)' and 'max(x, y)' which take the smaller and larger of
// two values, respectively.
func NewOutputter(fileName string, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	scalarFunc := func(name string, f func(float64) float64) govaluate.ExpressionFunction {
		return func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("etmap: got %d arguments for function '%s', but needs 1", len(arg), name)
			}
			return f(arg[0].(float64)), nil
		}
	}
	defaultOutputFuncs := map[string]govaluate.ExpressionFunction{
		"exp":  scalarFunc("exp", math.Exp),
		"log":  scalarFunc("log", math.Log),
		"sqrt": scalarFunc("sqrt", math.Sqrt),
		"abs":  scalarFunc("abs", math.Abs),
		"min": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 2 {
				return nil, fmt.Errorf("etmap: got %d arguments for function 'min', but needs 2", len(arg))
			}
			return math.Min(arg[0].(float64), arg[1].(float64)), nil
		},
		"max": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 2 {
				return nil, fmt.Errorf("etmap: got %d arguments for function 'max', but needs 2", len(arg))
			}
			return math.Max(arg[0].(float64), arg[1].(float64)), nil
		},
	}

	for key, val := range outputFunctions {
		defaultOutputFuncs[key] = val
	}

	o := Outputter{
		fileName:        fileName,
		outputVariables: make(map[string]string, len(outputVariables)),
		outputFunctions: defaultOutputFuncs,
	}
	for key, val := range outputVariables {
		o.outputVariables[key] = val
	}

	for _, val := range o.outputVariables {
		regx, _ := regexp.Compile("\\{(.*?)\\}")
		matches := regx.FindAllString(val, -1)
		if len(matches) > 0 {
			for _, m := range matches {
				if strings.Count(m, "{") > 1 || strings.Count(m, "}") > 1 {
					return nil, fmt.Errorf("etmap: unsupported use of braces {} in output variable expression %q", val)
				}
				o.outputVariables[m] = m[1 : len(m)-1]
			}
		}
	}

	err := o.checkForDerivatives()

	for k1, v1 := range o.outputVariables {
		if strings.Contains(k1, "{") {
			for k2, v2 := range o.outputVariables {
				if k1 != k2 {
					o.outputVariables[k2] = strings.Replace(v2, v1, "{"+v1+"}", -1)
				}
			}
			delete(o.outputVariables, k1)
		}
	}

	return &o, err
}

// removeDuplicates removes all duplicated strings from a slice, returning a
// slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]string)
	for _, val := range s {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = val
		}
	}
	return result
}

func checkPrefix(s string) (bool, error) {
	var isPrefix bool
	var err error
	if string(s) != "" {
		isPrefix, err = regexp.MatchString("[a-zA-Z0-9_]", string(s[0]))
		if err != nil {
			return false, err
		}
	} else {
		isPrefix = false
	}
	return isPrefix, nil
}

func checkSuffix(s string) (bool, error) {
	var isSuffix bool
	var err error
	if string(s) != "" {
		isSuffix, err = regexp.MatchString("[a-zA-Z0-9_]", string(s[len(s)-1]))
		if err != nil {
			return false, err
		}
	} else {
		isSuffix = false
	}
	return isSuffix, nil
}

// checkForDerivatives identifies the unique grid variables that are
// required to calculate the requested output variables, replacing
// any user-defined output variable appearing in another expression
// by its defining expression.
func (o *Outputter) checkForDerivatives() error {
	o.modelVariables = make([]string, 0, len(o.outputVariables))
	for key, val := range o.outputVariables {
		o.outputVariables[key] = strings.Replace(val, "{", "", -1)
		o.outputVariables[key] = strings.Replace(o.outputVariables[key], "}", "", -1)
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(o.outputVariables[key], o.outputFunctions)
		if err != nil {
			return fmt.Errorf("etmap: output variable expression: %v", err)
		}
		uniqueVars := removeDuplicates(expression.Vars())
		o.modelVariables = append(o.modelVariables, uniqueVars...)
		// For each variable name identified in an output variable
		// expression, check if the variable is defined in terms of
		// other variables within a separate expression. If so, any
		// instance of the variable name is replaced by the
		// expression that defines it.
		var isSuffix bool
		var isPrefix bool
		for _, uniqueVar := range uniqueVars {
			if o.outputVariables[uniqueVar] != "" && o.outputVariables[uniqueVar] != uniqueVar {
				// To verify that an instance of a variable name is
				// not part of a longer variable name, the text
				// preceding and following it is analyzed. For
				// example, 'Days' is not a standalone variable in an
				// expression if it appears as 'WetDays'.
				splitVal := strings.Split(val, uniqueVar)
				for i := 0; i < len(splitVal)-1; i++ {
					isSuffix, err = checkSuffix(splitVal[i])
					if err != nil {
						return fmt.Errorf("etmap: output variable expression: %v", err)
					}
					isPrefix, err = checkPrefix(splitVal[i+1])
					if err != nil {
						return fmt.Errorf("etmap: output variable expression: %v", err)
					}
					splitVal[i] = splitVal[i] + uniqueVar
					if !isSuffix && !isPrefix {
						splitVal[i] = strings.Replace(splitVal[i], uniqueVar, "("+o.outputVariables[uniqueVar]+")", -1)
					}
				}
				o.outputVariables[key] = strings.Join(splitVal, "")
				return o.checkForDerivatives()
			}
		}
	}
	o.modelVariables = removeDuplicates(o.modelVariables)
	return nil
}

// gridVarNames lists the variables an AggregateGrid provides to
// output expressions.
var gridVarNames = []string{"PET", "Days"}

// checkModelVars checks whether the grid variables required to
// calculate the requested output variables are available.
func (o *Outputter) checkModelVars() error {
	available := make(map[string]uint8)
	for _, n := range gridVarNames {
		available[n] = 0
	}
	for _, v := range o.modelVariables {
		if _, ok := available[v]; !ok {
			return fmt.Errorf("etmap: undefined variable name '%s'", v)
		}
	}
	return nil
}

// checkOutputNames checks (1) if any output variable names exceed 10
// characters and (2) if any output variable names include characters
// that are unsupported in shapefile field names.
func checkOutputNames(o map[string]string) error {
	for key := range o {
		long := len(key) > 10
		noCharError, err := regexp.MatchString("^[A-Za-z]\\w*$", key)
		if err != nil {
			panic(err)
		}
		if long && !noCharError {
			return fmt.Errorf("etmap: output variable name '%s' exceeds 10 characters and includes unsupported character(s)", key)
		} else if long {
			return fmt.Errorf("etmap: output variable name '%s' exceeds 10 characters", key)
		} else if !noCharError {
			return fmt.Errorf("etmap: output variable name '%s' includes unsupported characters", key)
		}
	}
	return nil
}

// CheckOutputVars ensures that the output variables can be
// calculated and that their names are usable as shapefile field
// names.
func (o *Outputter) CheckOutputVars() error {
	if err := o.checkModelVars(); err != nil {
		return err
	}
	return checkOutputNames(o.outputVariables)
}

// Results calculates the values of the output variable expressions
// for each cell of a. Cells where an input variable is NaN
// generally yield NaN results.
func (o *Outputter) Results(a *AggregateGrid) (map[string][]float64, error) {
	n := len(a.Data.Elements)
	if len(a.Days.Elements) != n {
		return nil, inputErrorf("etmap: aggregate data has %d cells but day counts have %d",
			n, len(a.Days.Elements))
	}
	results := make(map[string][]float64, len(o.outputVariables))
	for key, val := range o.outputVariables {
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(val, o.outputFunctions)
		if err != nil {
			return nil, fmt.Errorf("etmap: output variable expression: %v", err)
		}
		out := make([]float64, n)
		params := make(map[string]interface{}, 2)
		for i := 0; i < n; i++ {
			params["PET"] = a.Data.Elements[i]
			params["Days"] = a.Days.Elements[i]
			result, err := expression.Evaluate(params)
			if err != nil {
				return nil, fmt.Errorf("etmap: evaluating output variable %s: %v", key, err)
			}
			v, ok := result.(float64)
			if !ok {
				return nil, fmt.Errorf("etmap: output variable %s yields non-numeric result %v", key, result)
			}
			out[i] = v
		}
		results[key] = out
	}
	return results, nil
}

// Output writes the output variable values for a to a shapefile with
// one row for each cell of the grid described by gc. The spatial
// reference of the output file is gc.Proj.
func (o *Outputter) Output(a *AggregateGrid, gc *GridConfig) error {
	if err := gc.check(); err != nil {
		return err
	}
	results, err := o.Results(a)
	if err != nil {
		return err
	}
	cells := gc.Cells()
	if len(cells) != len(a.Data.Elements) {
		return inputErrorf("etmap: grid has %d cells but aggregate data has %d",
			len(cells), len(a.Data.Elements))
	}

	vars := make([]string, 0, len(results))
	for v := range results {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	fields := make([]goshp.Field, len(vars))
	for i, v := range vars {
		fields[i] = goshp.FloatField(v, 14, 8)
	}

	// remove extension and replace it with .shp
	fileBase := strings.TrimSuffix(o.fileName, filepath.Ext(o.fileName))
	o.fileName = fileBase + ".shp"
	shape, err := shp.NewEncoderFromFields(o.fileName, goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("etmap: error creating output shapefile: %v", err)
	}
	for i, c := range cells {
		outFields := make([]interface{}, len(vars))
		for j, v := range vars {
			outFields[j] = results[v][i]
		}
		err = shape.EncodeFields(c, outFields...)
		if err != nil {
			return fmt.Errorf("etmap: error writing output shapefile: %v", err)
		}
	}
	shape.Close()

	// Create .prj file
	f, err := os.Create(fileBase + ".prj")
	if err != nil {
		return fmt.Errorf("etmap: error creating output prj file: %v", err)
	}
	fmt.Fprint(f, gc.Proj)
	f.Close()

	return nil
}

// DeleteShapefile deletes the named shapefile and its auxiliary
// files.
func DeleteShapefile(fname string) error {
	fname = strings.TrimSuffix(fname, ".shp")
	for _, ext := range []string{".shp", ".dbf", ".shx", ".prj"} {
		if err := os.Remove(fname + ext); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// WriteNetCDF writes the aggregated grid a and the grid geometry gc
// to NetCDF file w.
func WriteNetCDF(w *os.File, gc *GridConfig, a *AggregateGrid) error {
	if err := gc.check(); err != nil {
		return err
	}
	if len(a.Data.Elements) != gc.Nx*gc.Ny {
		return inputErrorf("etmap: grid has %d cells but aggregate data has %d",
			gc.Nx*gc.Ny, len(a.Data.Elements))
	}
	h := cdf.NewHeader([]string{"y", "x"}, []int{gc.Ny, gc.Nx})
	h.AddAttribute("", "comment", "ETMap mean potential evapotranspiration data file")

	h.AddAttribute("", "x0", []float64{gc.Xo})
	h.AddAttribute("", "y0", []float64{gc.Yo})
	h.AddAttribute("", "dx", []float64{gc.Dx})
	h.AddAttribute("", "dy", []float64{gc.Dy})
	h.AddAttribute("", "nx", []int32{int32(gc.Nx)})
	h.AddAttribute("", "ny", []int32{int32(gc.Ny)})
	h.AddAttribute("", "proj", gc.Proj)

	h.AddVariable("pet", []string{"y", "x"}, []float32{0})
	h.AddAttribute("pet", "description", "Mean potential evapotranspiration")
	h.AddAttribute("pet", "units", a.Units)
	h.AddVariable("days", []string{"y", "x"}, []float32{0})
	h.AddAttribute("days", "description", "Number of days with valid data")
	h.AddAttribute("days", "units", "days")
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return err
	}
	if err := writeNCF(f, "pet", a.Data); err != nil {
		return fmt.Errorf("etmap: writing variable pet to netcdf file: %v", err)
	}
	if err := writeNCF(f, "days", a.Days); err != nil {
		return fmt.Errorf("etmap: writing variable days to netcdf file: %v", err)
	}
	return cdf.UpdateNumRecs(w)
}

func writeNCF(f *cdf.File, Var string, data *sparse.DenseArray) error {
	// Check that data matches dimensions.
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}

	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	end := f.Header.Lengths(Var)
	start := make([]int, len(end))
	w := f.Writer(Var, start, end)
	_, err := w.Write(data32)
	return err
}

// ReadNetCDF reads a grid geometry and aggregated grid from a
// NetCDF file created by WriteNetCDF.
func ReadNetCDF(rw cdf.ReaderWriterAt) (*GridConfig, *AggregateGrid, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, nil, fmt.Errorf("etmap: opening netcdf file: %v", err)
	}
	gc := &GridConfig{
		Xo:   f.Header.GetAttribute("", "x0").([]float64)[0],
		Yo:   f.Header.GetAttribute("", "y0").([]float64)[0],
		Dx:   f.Header.GetAttribute("", "dx").([]float64)[0],
		Dy:   f.Header.GetAttribute("", "dy").([]float64)[0],
		Nx:   int(f.Header.GetAttribute("", "nx").([]int32)[0]),
		Ny:   int(f.Header.GetAttribute("", "ny").([]int32)[0]),
		Proj: f.Header.GetAttribute("", "proj").(string),
	}
	a := &AggregateGrid{
		Units: f.Header.GetAttribute("pet", "units").(string),
	}
	if a.Data, err = readNCFVar(f, "pet", gc); err != nil {
		return nil, nil, err
	}
	if a.Days, err = readNCFVar(f, "days", gc); err != nil {
		return nil, nil, err
	}
	return gc, a, nil
}

func readNCFVar(f *cdf.File, Var string, gc *GridConfig) (*sparse.DenseArray, error) {
	dims := f.Header.Lengths(Var)
	data := sparse.ZerosDense(dims...)
	tmp := make([]float32, len(data.Elements))
	r := f.Reader(Var, nil, nil)
	if _, err := r.Read(tmp); err != nil {
		return nil, fmt.Errorf("etmap: reading variable %s from netcdf file: %v", Var, err)
	}
	if len(tmp) != gc.Nx*gc.Ny {
		return nil, fmt.Errorf("etmap: variable %s has %d values but the grid has %d cells",
			Var, len(tmp), gc.Nx*gc.Ny)
	}
	for i, v := range tmp {
		data.Elements[i] = float64(v)
	}
	return data, nil
}

// A DailyWriter incrementally writes a series of daily
// evapotranspiration grids to a NetCDF file.
type DailyWriter struct {
	f   *cdf.File
	w   *os.File
	gc  *GridConfig
	rec int
	n   int
}

// NewDailyWriter creates a writer for n daily grids on the grid
// described by gc, writing to w.
func NewDailyWriter(w *os.File, gc *GridConfig, n int) (*DailyWriter, error) {
	if err := gc.check(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, inputErrorf("etmap: the number of days %d must be positive", n)
	}
	h := cdf.NewHeader([]string{"time", "y", "x"}, []int{n, gc.Ny, gc.Nx})
	h.AddAttribute("", "comment", "ETMap daily potential evapotranspiration data file")
	h.AddAttribute("", "x0", []float64{gc.Xo})
	h.AddAttribute("", "y0", []float64{gc.Yo})
	h.AddAttribute("", "dx", []float64{gc.Dx})
	h.AddAttribute("", "dy", []float64{gc.Dy})
	h.AddAttribute("", "nx", []int32{int32(gc.Nx)})
	h.AddAttribute("", "ny", []int32{int32(gc.Ny)})
	h.AddAttribute("", "proj", gc.Proj)

	h.AddVariable("time", []string{"time"}, []int32{0})
	h.AddAttribute("time", "units", "hours since 1900-01-01 00:00:00.0")
	h.AddVariable("pet", []string{"time", "y", "x"}, []float32{0})
	h.AddAttribute("pet", "description", "Daily potential evapotranspiration")
	h.AddAttribute("pet", "units", PETUnits)
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return nil, err
	}
	return &DailyWriter{f: f, w: w, gc: gc, n: n}, nil
}

// Add appends one daily grid to the file.
func (d *DailyWriter) Add(g *PETGrid) error {
	if d.rec >= d.n {
		return inputErrorf("etmap: daily output file is full after %d days", d.n)
	}
	if len(g.Data.Elements) != d.gc.Nx*d.gc.Ny {
		return inputErrorf("etmap: daily grid has %d cells but the output grid has %d",
			len(g.Data.Elements), d.gc.Nx*d.gc.Ny)
	}
	hours := int32((g.Time.Unix() - secsSince1900) / 3600)
	tw := d.f.Writer("time", []int{d.rec}, []int{d.rec + 1})
	if _, err := tw.Write([]int32{hours}); err != nil {
		return fmt.Errorf("etmap: writing time for day %d: %v", d.rec, err)
	}
	data32 := make([]float32, len(g.Data.Elements))
	for i, e := range g.Data.Elements {
		data32[i] = float32(e)
	}
	pw := d.f.Writer("pet", []int{d.rec, 0, 0}, []int{d.rec + 1, 0, 0})
	if _, err := pw.Write(data32); err != nil {
		return fmt.Errorf("etmap: writing PET for day %d: %v", d.rec, err)
	}
	d.rec++
	return nil
}

// Close finalizes the file. It does not close the underlying file.
func (d *DailyWriter) Close() error {
	if d.rec != d.n {
		return inputErrorf("etmap: wrote %d days to the daily output file but expected %d", d.rec, d.n)
	}
	if err := cdf.UpdateNumRecs(d.w); err != nil {
		return fmt.Errorf("etmap: finalizing daily output file: %v", err)
	}
	return nil
}

// WriteSummaryXLSX writes a workbook summarizing the aggregated
// grid: for each variable its valid range, mean, and units.
func WriteSummaryXLSX(fileName string, a *AggregateGrid) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("summary")
	if err != nil {
		return fmt.Errorf("etmap: creating summary workbook: %v", err)
	}
	header := sheet.AddRow()
	for _, s := range []string{"variable", "min", "max", "mean", "units"} {
		header.AddCell().SetString(s)
	}
	summarize := func(name string, data *sparse.DenseArray, units string) {
		row := sheet.AddRow()
		row.AddCell().SetString(name)
		min, max := gridRange(data)
		row.AddCell().SetFloat(min)
		row.AddCell().SetFloat(max)
		v := validValues(data)
		if len(v) == 0 {
			row.AddCell().SetFloat(math.NaN())
		} else {
			row.AddCell().SetFloat(floats.Sum(v) / float64(len(v)))
		}
		row.AddCell().SetString(units)
	}
	summarize("PET", a.Data, a.Units)
	summarize("Days", a.Days, "days")
	if err := file.Save(fileName); err != nil {
		return fmt.Errorf("etmap: saving summary workbook: %v", err)
	}
	return nil
}

// secsSince1900 is the Unix time of 1900-01-01T00:00:00Z, the epoch
// used for NetCDF time values.
const secsSince1900 = -2208988800

// timeFromHours1900 converts a NetCDF time value in hours since
// 1900-01-01 to a time.Time.
func timeFromHours1900(h int32) time.Time {
	return time.Unix(int64(h)*3600+secsSince1900, 0).UTC()
}
