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
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
)

// ReadRegion reads a region polygon from a shapefile or GeoJSON
// file, chosen by the file extension. Shapefile geometries are
// reprojected to gridSR if it is non-nil; GeoJSON geometries are
// assumed to already be in longitude-latitude coordinates. All
// polygons in the file are merged into a single region. msgChan, if
// non-nil, receives a progress message.
func ReadRegion(filename string, gridSR *proj.SR, msgChan chan string) (geom.Polygon, error) {
	if msgChan != nil {
		msgChan <- fmt.Sprintf("Loading region file: %s.", filename)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".shp":
		return readRegionShapefile(filename, gridSR)
	case ".json", ".geojson":
		return readRegionGeoJSON(filename)
	default:
		return nil, inputErrorf("etmap: unsupported region file type %q; need .shp, .json, or .geojson",
			filepath.Ext(filename))
	}
}

type regionRow struct {
	geom.Geom
}

func readRegionShapefile(filename string, gridSR *proj.SR) (geom.Polygon, error) {
	fname := strings.Replace(filename, ".shp", "", -1)
	f, err := shp.NewDecoder(fname + ".shp")
	if err != nil {
		return nil, fmt.Errorf("etmap: there was a problem reading the region shapefile '%s'. "+
			"The error message was %v.", fname, err)
	}
	defer f.Close()
	var trans proj.Transformer
	if gridSR != nil {
		sr, err := f.SR()
		if err != nil {
			return nil, fmt.Errorf("etmap: there was a problem reading the projection information for "+
				"the region shapefile '%s'. The error message was %v.", fname, err)
		}
		trans, err = sr.NewTransform(gridSR)
		if err != nil {
			return nil, fmt.Errorf("etmap: there was a problem creating a spatial reprojector for "+
				"the region shapefile '%s'. The error message was %v.", fname, err)
		}
	}
	var region geom.Polygon
	for {
		var row regionRow
		if ok := f.DecodeRow(&row); !ok {
			break
		}
		g := row.Geom
		if trans != nil {
			g, err = g.Transform(trans)
			if err != nil {
				return nil, fmt.Errorf("etmap: there was a problem spatially reprojecting in "+
					"region file %s. The error message was %v", fname, err)
			}
		}
		switch p := g.(type) {
		case geom.Polygon:
			region = append(region, p...)
		case geom.MultiPolygon:
			for _, poly := range p {
				region = append(region, poly...)
			}
		default:
			return nil, geometryErrorf("etmap: region shapefile %s contains non-polygon geometry %T", fname, g)
		}
	}
	if err := f.Error(); err != nil {
		return nil, fmt.Errorf("etmap: problem reading region shapefile."+
			"\nfile: %s\nerror: %v", fname, err)
	}
	return region, nil
}

func readRegionGeoJSON(filename string) (geom.Polygon, error) {
	f, err := os.Open(os.ExpandEnv(filename))
	if err != nil {
		return nil, fmt.Errorf("etmap: opening region file: %v", err)
	}
	defer f.Close()
	b, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("etmap: reading region file: %v", err)
	}
	j, err := geojson.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("etmap: decoding region GeoJSON: %v", err)
	}
	var region geom.Polygon
	switch g := j.(type) {
	case geom.Polygon:
		region = g
	case geom.MultiPolygon:
		for _, p := range g {
			region = append(region, p...)
		}
	default:
		return nil, geometryErrorf("etmap: invalid region geometry type %T", j)
	}
	return region, nil
}

// A RegionMask marks the cells of a grid layout that intersect a
// region polygon, so that grids can be clipped to the region.
type RegionMask struct {
	shape []int
	keep  []bool
}

// NewRegionMask creates a mask keeping the cells of the grid
// described by gc that intersect region. The region must have a
// positive area.
func NewRegionMask(region geom.Polygonal, gc *GridConfig) (*RegionMask, error) {
	if err := gc.check(); err != nil {
		return nil, err
	}
	if region == nil || len(region.Polygons()) == 0 {
		return nil, geometryErrorf("etmap: the region has no geometry")
	}
	if region.Area() == 0 {
		return nil, geometryErrorf("etmap: the region has zero area")
	}

	// Load the region polygons into an rtree for fast searching.
	index := rtree.NewTree(25, 50)
	for _, p := range region.Polygons() {
		index.Insert(p)
	}

	m := &RegionMask{
		shape: gc.Shape(),
		keep:  make([]bool, gc.Nx*gc.Ny),
	}
	for j := 0; j < gc.Ny; j++ {
		for i := 0; i < gc.Nx; i++ {
			cell := gc.CellPolygon(j, i)
			for _, pI := range index.SearchIntersect(cell.Bounds()) {
				isect := cell.Intersection(pI.(geom.Polygon))
				if isect != nil && isect.Area() > 0 {
					m.keep[j*gc.Nx+i] = true
					break
				}
			}
		}
	}
	return m, nil
}

// Clip returns a copy of grid where every cell outside the mask's
// region holds NaN. Cells inside the region keep their values, so
// clipping is idempotent.
func (m *RegionMask) Clip(grid *sparse.DenseArray) (*sparse.DenseArray, error) {
	if !reflect.DeepEqual(grid.Shape, m.shape) {
		return nil, inputErrorf("etmap: grid to clip has shape %v; want %v", grid.Shape, m.shape)
	}
	out := grid.Copy()
	for i, keep := range m.keep {
		if !keep {
			out.Elements[i] = math.NaN()
		}
	}
	return out, nil
}
