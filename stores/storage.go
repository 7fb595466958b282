package stores

import (
	"os"

	"collab-whiteboard/core"
	"collab-whiteboard/stores/filesystem"
	"collab-whiteboard/stores/memory"
	"collab-whiteboard/stores/s3"
	"collab-whiteboard/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// GetStore selects the persistence backend from STORAGE_TYPE. The default
// is the in-memory store, which keeps nothing across restarts; the hub's
// own state is volatile anyway.
func GetStore() core.Store {
	storageType := os.Getenv("STORAGE_TYPE")
	var store core.Store

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data"
		}
		storageField["basePath"] = basePath
		store = filesystem.NewStore(basePath)
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "collab.db"
		}
		storageField["dataSourceName"] = dataSourceName
		store = sqlite.NewStore(dataSourceName)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = bucketName
		store = s3.NewStore(bucketName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
