package storageutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
)

var fileBlobBucket *blob.Bucket

type Profile struct {
	Samples []int `json:"samples"`
	Frames  []int `json:"frames"`
}

func TestMain(m *testing.M) {
	temporaryDirectory, err := os.MkdirTemp(os.TempDir(), "rtprofile-storage-*")
	if err != nil {
		log.Fatalf("couldn't create a temporary directory: %s", err.Error())
	}

	fileBlobBucket, err = blob.OpenBucket(context.Background(), "file://localhost/"+temporaryDirectory)
	if err != nil {
		log.Fatalf("couldn't open a local filesystem bucket: %s", err.Error())
	}

	code := m.Run()

	if err := fileBlobBucket.Close(); err != nil {
		log.Printf("couldn't close the local filesystem bucket: %s", err.Error())
	}
	if err := os.RemoveAll(temporaryDirectory); err != nil {
		log.Printf("couldn't remove the temporary directory: %s", err.Error())
	}

	os.Exit(code)
}

func TestUploadProfile(t *testing.T) {
	ctx := context.Background()
	objectName := uuid.New().String()
	originalData := Profile{
		Samples: []int{1, 2, 3, 4},
		Frames:  []int{1, 2, 3, 4},
	}

	err := CompressedWrite(ctx, fileBlobBucket, objectName, originalData)
	if err != nil {
		t.Fatalf("we should be able to write: %v", err)
	}
	object, err := fileBlobBucket.ReadAll(ctx, objectName)
	if err != nil {
		t.Fatalf("we should be able to read the object: %v", err)
	}
	uncompressedData, err := io.ReadAll(lz4.NewReader(bytes.NewReader(object)))
	if err != nil {
		t.Fatalf("we should be able to uncompress the data: %v", err)
	}
	b, err := json.Marshal(originalData)
	if err != nil {
		t.Fatalf("we should be able to marshal this: %v", err)
	}
	if !bytes.Equal(b, bytes.TrimSpace(uncompressedData)) {
		t.Fatalf("data should be identical: %s %s", b, uncompressedData)
	}
}

func TestDownloadProfile(t *testing.T) {
	ctx := context.Background()
	objectName := uuid.New().String()
	originalData := []byte(`{"samples":[1,2,3,4],"frames":[1,2,3,4]}`)

	var compressedData bytes.Buffer
	w := lz4.NewWriter(&compressedData)
	_, _ = w.Write(originalData)
	if err := w.Close(); err != nil {
		t.Fatalf("we should be able to close the writer: %v", err)
	}
	if err := fileBlobBucket.WriteAll(ctx, objectName, compressedData.Bytes(), nil); err != nil {
		t.Fatalf("we should be able to write the object: %v", err)
	}

	var profile Profile
	err := UnmarshalCompressed(ctx, fileBlobBucket, objectName, &profile)
	if err != nil {
		t.Fatalf("we should be able to read the object: %v", err)
	}
	uncompressedData, err := json.Marshal(profile)
	if err != nil {
		t.Fatalf("we should be able to marshal back to JSON: %v", err)
	}
	if !bytes.Equal(originalData, uncompressedData) {
		t.Fatalf("data should be identical: %v %v", string(originalData), string(uncompressedData))
	}
}

func TestDownloadMissingProfile(t *testing.T) {
	var profile Profile
	err := UnmarshalCompressed(context.Background(), fileBlobBucket, uuid.New().String(), &profile)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	for _, key := range []string{"profiles/a", "profiles/b", "other/c"} {
		if err := bucket.WriteAll(ctx, key, []byte("{}"), nil); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := DeleteOlderThan(ctx, bucket, "profiles/", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 0 {
		t.Fatalf("recent objects should be kept, deleted %d", deleted)
	}

	deleted, err = DeleteOlderThan(ctx, bucket, "profiles/", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted objects, got %d", deleted)
	}
	if ok, _ := bucket.Exists(ctx, "other/c"); !ok {
		t.Fatal("objects outside the prefix should be kept")
	}
}
