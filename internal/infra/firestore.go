// README: Firestore helpers shared by the document stores.
package infra

import (
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cabdispatch/internal/types"
)

// IsNotFound reports whether err is a Firestore NotFound status.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// GeoPoint converts an optional point to a Firestore geopoint; nil stays nil.
func GeoPoint(p *types.Point) *latlng.LatLng {
	if p == nil {
		return nil
	}
	return &latlng.LatLng{Latitude: p.Lat, Longitude: p.Lng}
}

func PointFromGeo(g *latlng.LatLng) *types.Point {
	if g == nil {
		return nil
	}
	return &types.Point{Lat: g.Latitude, Lng: g.Longitude}
}

// PlaceDoc is the stored form of an addressed point.
type PlaceDoc struct {
	Address  string         `firestore:"address"`
	Location *latlng.LatLng `firestore:"location"`
}

func NewPlaceDoc(p types.Place) PlaceDoc {
	doc := PlaceDoc{Address: p.Address}
	if p.Valid() {
		pt := p.Point
		doc.Location = GeoPoint(&pt)
	}
	return doc
}

// Place decodes the stored place. A missing location becomes types.UnknownPoint.
func (d PlaceDoc) Place() types.Place {
	out := types.Place{Point: types.UnknownPoint(), Address: d.Address}
	if pt := PointFromGeo(d.Location); pt != nil {
		out.Point = *pt
	}
	return out
}

func NewPlaceDocs(places []types.Place) []PlaceDoc {
	if len(places) == 0 {
		return nil
	}
	out := make([]PlaceDoc, 0, len(places))
	for _, p := range places {
		out = append(out, NewPlaceDoc(p))
	}
	return out
}

func PlacesFromDocs(docs []PlaceDoc) []types.Place {
	if len(docs) == 0 {
		return nil
	}
	out := make([]types.Place, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Place())
	}
	return out
}
