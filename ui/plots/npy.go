package plots

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// SaveNPY writes a row-major matrix of float64 values as a NumPy .npy file,
// so experiment outputs can be loaded from Python for analysis.
func SaveNPY(flat []float64, rows, cols int, filePath string) error {
	if rows <= 0 || cols <= 0 || len(flat) != rows*cols {
		return errors.Errorf("matrix of %d values cannot be shaped [%d, %d]", len(flat), rows, cols)
	}
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", filePath)
	}
	if err := npyio.Write(f, mat.NewDense(rows, cols, flat)); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to encode matrix to %q", filePath)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to write %q", filePath)
	}
	return nil
}
