package healthchecker

import (
	"github.com/briefcall/marketplace/internal/database"
)

func CheckDB() error {
	_, err := database.NewDatabase()

	return err
}
