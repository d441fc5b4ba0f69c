// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/satori/go.uuid"

	"github.com/comet-ml/opik-sub005/attachment"
)

// projectNamespace seeds the name-based project IDs.
var projectNamespace = uuid.NewV5(uuid.NamespaceURL, "https://www.comet.com/opik/attachment/project")

// ProjectID derives the ID Add gives a project.  It depends only on
// the workspace and name, so every process, and every restart,
// agrees on it.
func ProjectID(workspace, name string) string {
	return uuid.NewV5(projectNamespace, workspace+"\x00"+name).String()
}

// Projects is an in-memory attachment.ProjectResolver.  Projects are
// registered with Add(); if AutoCreate is set, resolving an unknown
// project name creates it.
type Projects struct {
	// AutoCreate causes ResolveProject to create missing projects
	// instead of returning ErrNoSuchProject.
	AutoCreate bool

	sem    sync.Mutex
	byName map[string]map[string]attachment.Project
	byID   map[string]attachment.Project
}

// NewProjects creates an empty project resolver.
func NewProjects() *Projects {
	return &Projects{
		byName: make(map[string]map[string]attachment.Project),
		byID:   make(map[string]attachment.Project),
	}
}

// Add registers a project in a workspace and returns it.  Adding the
// same name twice returns the existing project.  The project's ID is
// ProjectID(workspace, name).
func (p *Projects) Add(workspace, name string) attachment.Project {
	p.sem.Lock()
	defer p.sem.Unlock()
	return p.add(workspace, name)
}

// AddWithID registers a project with an ID assigned elsewhere.  It
// fails if the name is already registered under a different ID, or
// the ID under a different name.
func (p *Projects) AddWithID(workspace, name, id string) (attachment.Project, error) {
	p.sem.Lock()
	defer p.sem.Unlock()
	if project, present := p.byName[workspace][name]; present {
		if project.ID != id {
			return attachment.Project{}, fmt.Errorf("project %v/%v already has ID %v", workspace, name, project.ID)
		}
		return project, nil
	}
	if project, present := p.byID[id]; present {
		return attachment.Project{}, fmt.Errorf("project ID %v already names %v/%v", id, project.Workspace, project.Name)
	}
	project := attachment.Project{ID: id, Name: name, Workspace: workspace}
	p.insert(project)
	return project, nil
}

// add is the internal version of Add; it assumes the lock.
func (p *Projects) add(workspace, name string) attachment.Project {
	if project, present := p.byName[workspace][name]; present {
		return project
	}
	project := attachment.Project{
		ID:        ProjectID(workspace, name),
		Name:      name,
		Workspace: workspace,
	}
	p.insert(project)
	return project
}

// insert indexes a new project; it assumes the lock.
func (p *Projects) insert(project attachment.Project) {
	workspace := project.Workspace
	name := project.Name
	if p.byName[workspace] == nil {
		p.byName[workspace] = make(map[string]attachment.Project)
	}
	p.byName[workspace][name] = project
	p.byID[project.ID] = project
}

// ResolveProject finds a project by name.
func (p *Projects) ResolveProject(ctx context.Context, workspace, name string) (attachment.Project, error) {
	p.sem.Lock()
	defer p.sem.Unlock()

	if project, present := p.byName[workspace][name]; present {
		return project, nil
	}
	if p.AutoCreate && name != "" {
		return p.add(workspace, name), nil
	}
	return attachment.Project{}, attachment.ErrNoSuchProject{Name: name}
}

// Project finds a project by ID, checking that it is in workspace.
func (p *Projects) Project(ctx context.Context, workspace, id string) (attachment.Project, error) {
	p.sem.Lock()
	defer p.sem.Unlock()

	project, present := p.byID[id]
	if !present {
		return attachment.Project{}, attachment.ErrNoSuchProject{Name: id}
	}
	if project.Workspace != workspace {
		return attachment.Project{}, attachment.ErrForbidden
	}
	return project, nil
}

// Projects lists the projects in a workspace, sorted by name.
func (p *Projects) Projects(ctx context.Context, workspace string) ([]attachment.Project, error) {
	p.sem.Lock()
	defer p.sem.Unlock()

	result := make([]attachment.Project, 0, len(p.byName[workspace]))
	for _, project := range p.byName[workspace] {
		result = append(result, project)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
