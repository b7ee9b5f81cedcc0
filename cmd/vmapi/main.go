package main

import (
	"context"
	"net/http"
	"time"

	logx "github.com/mistifyio/mistify-logrus-ext"
	log "github.com/sirupsen/logrus"

	"github.com/Smithx10/sdc-vmapi/collaborators"
	"github.com/Smithx10/sdc-vmapi/config"
	"github.com/Smithx10/sdc-vmapi/fabric"
	"github.com/Smithx10/sdc-vmapi/httpapi"
	"github.com/Smithx10/sdc-vmapi/reconcile"
	"github.com/Smithx10/sdc-vmapi/store"
	"github.com/Smithx10/sdc-vmapi/validate"
	"github.com/Smithx10/sdc-vmapi/waitlist"
	"github.com/Smithx10/sdc-vmapi/workflow"
)

func main() {
	conf := config.NewConfig()
	if err := conf.AddConfig("vmapi.json"); err != nil {
		log.WithField("error", err).Fatal("failed to load vmapi.json")
	}
	if err := conf.Fixup(); err != nil {
		log.WithField("error", err).Fatal("invalid configuration")
	}
	if err := logx.DefaultSetup(conf.LogLevel); err != nil {
		log.WithField("error", err).Warn("log setup failed, continuing with defaults")
	}

	db, err := store.Open(conf.DBPath)
	if err != nil {
		log.WithField("error", err).Fatal("failed to open vm store")
	}
	jobLog := store.NewJobLog(db)

	urls := make(map[string]string, len(conf.Collaborators))
	for name, c := range conf.Collaborators {
		urls[name] = c.URL
	}
	bundle, err := collaborators.NewBundle(urls)
	if err != nil {
		log.WithField("error", err).Fatal("failed to build collaborator bundle")
	}

	kernel, err := waitlist.New(db)
	if err != nil {
		log.WithField("error", err).Fatal("failed to start waitlist kernel")
	}

	nat := &fabric.Manager{Store: db, Bundle: bundle, Waitlist: kernel}

	tuning := make(map[string]config.PipelineTuning, len(conf.Pipelines))
	for name, t := range conf.Pipelines {
		tuning[name] = t
	}

	reconciler := &reconcile.Reconciler{
		Store:        db,
		JobLog:       jobLog,
		NAPI:         bundle.NAPI,
		CNAPI:        bundle.CNAPI,
		Waitlist:     kernel,
		FabricReaper: nat,
	}

	// The core never implements the workflow executor itself (spec.md §1's
	// Non-goals) — WFAPIExecutor is kept for a deployment that splits the
	// executor into its own WFAPI process. This binary runs the composed
	// pipelines in-process instead, the way the teacher's agent runs a
	// guest's action stages directly, and feeds every terminal Outcome
	// straight to the Reconciler rather than polling an external job store
	// for state it already produced itself.
	composer := &workflow.Composer{
		Bundle:   bundle,
		Waitlist: kernel,
		Store:    db,
		Tuning:   tuning,
		NAT:      nat,
		Fabrics:  nat,
	}
	composer.Executor = &workflow.InProcessExecutor{
		OnDone: func(jobUUID string, outcome workflow.Outcome, jc *workflow.JobContext) {
			jc.Job.UUID = jobUUID
			if err := reconciler.Reconcile(context.Background(), outcome, jc); err != nil {
				log.WithFields(log.Fields{"job": jobUUID, "vm": jc.VM.UUID, "error": err}).
					Error("reconcile failed")
			}
		},
	}

	gateway := &httpapi.Gateway{
		Validator:  validate.New(bundle),
		Composer:   composer,
		Store:      db,
		JobLog:     jobLog,
		Reconciler: reconciler,
		WFAPIURL:   conf.Collaborators["wfapi"].URL,
	}

	server := &http.Server{
		Addr:           conf.ListenAddress,
		Handler:        gateway.Router(),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	log.WithField("address", conf.ListenAddress).Info("vmapi listening")
	log.Fatal(server.ListenAndServe())
}
