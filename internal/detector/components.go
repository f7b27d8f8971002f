package detector

// foregroundMap computes |F − μ| > k·σ pixel-wise, gated by the mask: a
// pixel the mask blocks is always forced to background regardless of the
// statistical test. samples must already be depth-decoded
// (frame.Frame.Samples), one entry per pixel at width×height.
func foregroundMap(samples []float64, bg *BackgroundModel, passes func(x, y int) bool, width, height int, k float64) []bool {
	fg := make([]bool, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if i >= len(samples) {
				continue
			}
			if !passes(x, y) {
				continue
			}
			diff := samples[i] - bg.Mean(i)
			if diff < 0 {
				diff = -diff
			}
			if diff > k*bg.Sigma(i) {
				fg[i] = true
			}
		}
	}
	return fg
}

// downsample2x box-averages 2×2 blocks of samples (width×height, already
// depth-decoded) into a half-resolution plane, per spec.md §4.4 step 1.
// width and height must both be even; callers derive the (possibly
// truncated) output dimensions from width/2, height/2.
func downsample2x(samples []float64, width, height int) []float64 {
	workWidth, workHeight := width/2, height/2
	out := make([]float64, workWidth*workHeight)
	for y := 0; y < workHeight; y++ {
		for x := 0; x < workWidth; x++ {
			sx, sy := x*2, y*2
			sum := samples[sy*width+sx] + samples[sy*width+sx+1] +
				samples[(sy+1)*width+sx] + samples[(sy+1)*width+sx+1]
			out[y*workWidth+x] = sum / 4
		}
	}
	return out
}

// upscaleComponents scales a component's bbox/centroid from the downsampled
// working resolution back to full-resolution pixel coordinates, so
// Candidate tracking and recorded trajectories stay in the original frame's
// coordinate space regardless of DetDownsample.
func upscaleComponents(comps []component, factor int) []component {
	out := make([]component, len(comps))
	f := float64(factor)
	for i, c := range comps {
		out[i] = component{
			bbox: Rect{
				MinX: c.bbox.MinX * factor, MinY: c.bbox.MinY * factor,
				MaxX: c.bbox.MaxX*factor + factor - 1, MaxY: c.bbox.MaxY*factor + factor - 1,
			},
			centroidX: c.centroidX * f,
			centroidY: c.centroidY * f,
			area:      c.area * factor * factor,
			peak:      c.peak,
		}
	}
	return out
}

// dilateErode applies one dilate pass then one erode pass with a 3×3
// structuring element, suppressing single-pixel noise while preserving the
// shape of genuine blobs, per spec.md §4.4 step 3.
func dilateErode(in []bool, width, height int) []bool {
	return erode3x3(dilate3x3(in, width, height), width, height)
}

func dilate3x3(in []bool, width, height int) []bool {
	out := make([]bool, len(in))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if anyNeighborSet(in, width, height, x, y) {
				out[y*width+x] = true
			}
		}
	}
	return out
}

func erode3x3(in []bool, width, height int) []bool {
	out := make([]bool, len(in))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if allNeighborsSet(in, width, height, x, y) {
				out[y*width+x] = true
			}
		}
	}
	return out
}

func anyNeighborSet(in []bool, width, height, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= width || ny >= height {
				continue
			}
			if in[ny*width+nx] {
				return true
			}
		}
	}
	return false
}

func allNeighborsSet(in []bool, width, height, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= width || ny >= height {
				return false
			}
			if !in[ny*width+nx] {
				return false
			}
		}
	}
	return true
}

// label performs 4-connected connected-component labeling over fg via
// iterative BFS (no recursion, so very large blobs can't blow the stack),
// rejecting components smaller than minArea or whose fillness
// (area / bbox area) is below minFillness. samples must already be
// depth-decoded (frame.Frame.Samples), one entry per pixel.
func label(fg []bool, samples []float64, width, height, minArea int, minFillness float64) []component {
	visited := make([]bool, len(fg))
	var comps []component
	var stack []int

	for start := range fg {
		if !fg[start] || visited[start] {
			continue
		}
		stack = stack[:0]
		stack = append(stack, start)
		visited[start] = true

		var sumX, sumY, peak float64
		area := 0
		bbox := Rect{MinX: width, MinY: height, MaxX: -1, MaxY: -1}

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			x, y := idx%width, idx/width
			area++
			sumX += float64(x)
			sumY += float64(y)
			if idx < len(samples) {
				v := samples[idx]
				if v > peak {
					peak = v
				}
			}
			bbox.MinX = min(bbox.MinX, x)
			bbox.MinY = min(bbox.MinY, y)
			bbox.MaxX = max(bbox.MaxX, x)
			bbox.MaxY = max(bbox.MaxY, y)

			for _, n := range neighbors4(x, y, width, height) {
				if fg[n] && !visited[n] {
					visited[n] = true
					stack = append(stack, n)
				}
			}
		}

		if area < minArea {
			continue
		}
		bboxArea := bbox.width() * bbox.height()
		if bboxArea > 0 && float64(area)/float64(bboxArea) < minFillness {
			continue
		}
		comps = append(comps, component{
			bbox:      bbox,
			centroidX: sumX / float64(area),
			centroidY: sumY / float64(area),
			area:      area,
			peak:      peak,
		})
	}
	return comps
}

func neighbors4(x, y, width, height int) []int {
	var out []int
	if x > 0 {
		out = append(out, y*width+x-1)
	}
	if x < width-1 {
		out = append(out, y*width+x+1)
	}
	if y > 0 {
		out = append(out, (y-1)*width+x)
	}
	if y < height-1 {
		out = append(out, (y+1)*width+x)
	}
	return out
}
