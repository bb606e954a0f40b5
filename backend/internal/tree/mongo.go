package tree

import (
	"io"
	"regexp"

	"github.com/DataDog/zstd"
	mgo "gopkg.in/mgo.v2"
	bson "gopkg.in/mgo.v2/bson"
)

type MongoConfig struct {
	// `Compress` stores object content zstd-compressed at rest.  Reads
	// are decompressed transparently, so callers never see the encoding.
	Compress bool
}

type collectionDoc struct {
	Id string `bson:"_id"`
}

type fileDoc struct {
	Filename string `bson:"filename"`
	Length   int64  `bson:"length"`
}

type objectMeta struct {
	Zstd bool `bson:"zstd"`
}

// `Mongo` is a `Store` that keeps collection membership in a MongoDB
// collection `<ns>.collections` and object content in GridFS
// `<ns>.objects.*`.
type Mongo struct {
	collections *mgo.Collection
	objects     *mgo.GridFS
	compress    bool
}

func NewMongo(conn *mgo.Session, ns string, cfg *MongoConfig) *Mongo {
	db := conn.DB("")
	s := &Mongo{
		collections: db.C(ns + ".collections"),
		objects:     db.GridFS(ns + ".objects"),
	}
	if cfg != nil {
		s.compress = cfg.Compress
	}
	return s
}

func (s *Mongo) EnsureCollection(path string) error {
	for p := path; p != ""; p = Parent(p) {
		err := s.collections.Insert(collectionDoc{Id: p})
		if err == nil {
			continue
		}
		if mgo.IsDup(err) {
			// Parents of an existing collection exist too.
			return nil
		}
		return &DBError{
			Op:  OpInsertCollection,
			Err: err,
		}
	}
	return nil
}

func (s *Mongo) CollectionExists(path string) (bool, error) {
	n, err := s.collections.FindId(path).Count()
	if err != nil {
		return false, &DBError{
			Op:  OpFindCollection,
			Err: err,
		}
	}
	return n > 0, nil
}

func (s *Mongo) ListCollections(path string) ([]string, error) {
	it := s.collections.Find(bson.M{
		"_id": childRegex(path),
	}).Sort("_id").Iter()
	var subs []string
	var d collectionDoc
	for it.Next(&d) {
		subs = append(subs, d.Id)
	}
	if err := it.Close(); err != nil {
		return nil, &DBError{
			Op:  OpScanCollections,
			Err: err,
		}
	}
	return subs, nil
}

func (s *Mongo) ListObjects(path string) ([]ObjectInfo, error) {
	it := s.objects.Find(bson.M{
		"filename": childRegex(path),
	}).Sort("filename").Iter()
	var objs []ObjectInfo
	var d fileDoc
	for it.Next(&d) {
		objs = append(objs, ObjectInfo{
			Name: Base(d.Filename),
			Size: d.Length,
		})
	}
	if err := it.Close(); err != nil {
		return nil, &DBError{
			Op:  OpScanObjects,
			Err: err,
		}
	}
	return objs, nil
}

func (s *Mongo) ObjectExists(path string) (bool, error) {
	n, err := s.objects.Find(bson.M{"filename": path}).Count()
	if err != nil {
		return false, &DBError{
			Op:  OpFindObject,
			Err: err,
		}
	}
	return n > 0, nil
}

type zstdReadCloser struct {
	z    io.ReadCloser
	file io.Closer
}

func (r *zstdReadCloser) Read(p []byte) (int, error) { return r.z.Read(p) }

func (r *zstdReadCloser) Close() error {
	errZ := r.z.Close()
	errF := r.file.Close()
	if errZ != nil {
		return errZ
	}
	return errF
}

func (s *Mongo) OpenObject(path string) (io.ReadCloser, error) {
	file, err := s.objects.Open(path)
	switch {
	case err == mgo.ErrNotFound:
		return nil, &NotFoundError{Path: path}
	case err != nil:
		return nil, &DBError{
			Op:  OpOpenObject,
			Err: err,
		}
	}
	var meta objectMeta
	// A missing or foreign meta doc reads as uncompressed.
	_ = file.GetMeta(&meta)
	if !meta.Zstd {
		return file, nil
	}
	return &zstdReadCloser{
		z:    zstd.NewReader(file),
		file: file,
	}, nil
}

type zstdWriteCloser struct {
	z    io.WriteCloser
	file io.Closer
}

func (w *zstdWriteCloser) Write(p []byte) (int, error) { return w.z.Write(p) }

func (w *zstdWriteCloser) Close() error {
	errZ := w.z.Close()
	errF := w.file.Close()
	if errZ != nil {
		return errZ
	}
	return errF
}

func (s *Mongo) CreateObject(path string) (io.WriteCloser, error) {
	// Remove previous versions so that `filename` stays unique.
	if err := s.objects.Remove(path); err != nil {
		return nil, &DBError{
			Op:  OpRemoveObject,
			Err: err,
		}
	}
	file, err := s.objects.Create(path)
	if err != nil {
		return nil, &DBError{
			Op:  OpCreateObject,
			Err: err,
		}
	}
	if !s.compress {
		return file, nil
	}
	file.SetMeta(objectMeta{Zstd: true})
	return &zstdWriteCloser{
		z:    zstd.NewWriter(file),
		file: file,
	}, nil
}

func (s *Mongo) RemoveTree(path string) error {
	prefix := "^" + regexp.QuoteMeta(path+"/")
	if err := s.collections.RemoveId(path); err != nil &&
		err != mgo.ErrNotFound {
		return &DBError{
			Op:  OpRemoveCollection,
			Err: err,
		}
	}
	_, err := s.collections.RemoveAll(bson.M{
		"_id": bson.RegEx{Pattern: prefix},
	})
	if err != nil {
		return &DBError{
			Op:  OpRemoveCollection,
			Err: err,
		}
	}

	it := s.objects.Find(bson.M{
		"filename": bson.RegEx{Pattern: prefix},
	}).Select(bson.M{"filename": 1}).Iter()
	var d fileDoc
	var names []string
	for it.Next(&d) {
		names = append(names, d.Filename)
	}
	if err := it.Close(); err != nil {
		return &DBError{
			Op:  OpScanObjects,
			Err: err,
		}
	}
	for _, name := range names {
		if err := s.objects.Remove(name); err != nil {
			return &DBError{
				Op:  OpRemoveObject,
				Err: err,
			}
		}
	}
	return nil
}

func childRegex(path string) bson.RegEx {
	return bson.RegEx{
		Pattern: "^" + regexp.QuoteMeta(path+"/") + "[^/]+$",
	}
}
