// Package etl is a toolkit for building reproducible data pipelines over
// public statistical datasets. It contains the table abstraction, provenance
// machinery, and helper interfaces shared by every stage of the catalog
// convention. Data flows through five stages, each a directory of the local
// catalog built from the one before it:
//
// 1. Snapshot
//
//    A snapshot is an immutable copy of an upstream file together with a
//    provenance sidecar: who produced it, where it was downloaded from,
//    when, under what license, and the checksum of its bytes. Snapshots are
//    the only stage that touches the outside world. The snapshot package
//    knows how to fetch from upstream URLs, S3-compatible buckets, and
//    Kafka topics for feeds that update continuously.
//
// 2. Format
//
//    The format stage turns a raw snapshot into a Table: headers normalized
//    to snake_case, values parsed into typed columns, the snapshot's origin
//    attached to every column. No semantic changes happen here - a format
//    step for a CSV of one producer is usually reusable for all of that
//    producer's files.
//
// 3. Harmonize
//
//    Harmonization reconciles the upstream's entity labels (country names,
//    region codes) with the catalog's canonical entities, using reviewed
//    mapping files plus normalized matching for the easy cases. This is
//    also where per-dataset metadata files are applied and where tables
//    from different producers get merged, so the metadata propagation rules
//    of the Table type matter most here.
//
// 4. Import
//
//    The import stage flattens harmonized tables into long-format
//    datapoints keyed by stable entity ids from the persistent registry,
//    one file per variable, ready for whatever database serves charts.
//
// 5. Publish
//
//    Publishing syncs the built catalog to a bucket, uploading only files
//    whose checksums changed, and writes the remote index that clients use
//    to find datasets.
//
// The steps package ties the stages together into a DAG with checksum-based
// dirty detection, so rebuilding the catalog only re-runs what changed.
package etl
