package facematch

import "image"

// BBoxArea returns the area of an [x1, y1, x2, y2] box, 0 for malformed boxes.
func BBoxArea(bbox []float64) float64 {
	if len(bbox) != 4 {
		return 0
	}
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// LargestFace returns the index of the observation with the largest bounding box,
// or -1 if there are none. Ties keep the first one.
func LargestFace(faces []Observation) int {
	best := -1
	bestArea := -1.0
	for i, f := range faces {
		if area := BBoxArea(f.BBox); area > bestArea {
			best = i
			bestArea = area
		}
	}
	return best
}

// PaddedRect converts an [x1, y1, x2, y2] pixel box into an image rectangle grown by
// padding on every side and clipped to bounds. The result is empty when the box lies
// outside bounds or is malformed.
func PaddedRect(bbox []float64, padding int, bounds image.Rectangle) image.Rectangle {
	if len(bbox) != 4 {
		return image.Rectangle{}
	}
	r := image.Rect(
		int(bbox[0])-padding,
		int(bbox[1])-padding,
		int(bbox[2])+padding,
		int(bbox[3])+padding,
	)
	return r.Intersect(bounds)
}
